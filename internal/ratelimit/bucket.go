// Package ratelimit throttles per-user traffic on the webhook and the HTTP
// API, and caps per-user LLM calls with an additional rolling daily quota.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a token bucket safe for concurrent use.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	perSecond  float64
	lastRefill time.Time
	now        func() time.Time
}

// NewBucket creates a full bucket holding capacity tokens that refills at
// perSecond tokens per second.
func NewBucket(capacity, perSecond float64) *Bucket {
	return newBucket(capacity, perSecond, time.Now)
}

func newBucket(capacity, perSecond float64, now func() time.Time) *Bucket {
	return &Bucket{
		tokens:     capacity,
		capacity:   capacity,
		perSecond:  perSecond,
		lastRefill: now(),
		now:        now,
	}
}

// refill must be called with mu held.
func (b *Bucket) refill() {
	t := b.now()
	b.tokens = min(b.capacity, b.tokens+t.Sub(b.lastRefill).Seconds()*b.perSecond)
	b.lastRefill = t
}

// Allow takes one token if available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Wait blocks until a token is taken or ctx is done.
func (b *Bucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refill()
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - b.tokens) / b.perSecond * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available returns the current token count.
func (b *Bucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// full reports whether the bucket has refilled completely, meaning its key
// has been idle.
func (b *Bucket) full() bool {
	return b.Available() >= b.capacity
}

// Window counts events over a rolling window using two fixed windows, with
// the previous window's count weighted by its remaining overlap.
type Window struct {
	mu       sync.Mutex
	limit    int
	size     time.Duration
	start    time.Time
	current  int
	previous int
	now      func() time.Time
}

// NewWindow returns nil when limit ≤ 0, which disables the quota.
func NewWindow(limit int, size time.Duration) *Window {
	return newWindow(limit, size, time.Now)
}

func newWindow(limit int, size time.Duration, now func() time.Time) *Window {
	if limit <= 0 {
		return nil
	}
	return &Window{limit: limit, size: size, start: now(), now: now}
}

// rotate advances start to the window containing t. Must be called with mu
// held.
func (w *Window) rotate(t time.Time) {
	elapsed := t.Sub(w.start)
	if elapsed < w.size {
		return
	}
	if elapsed < 2*w.size {
		w.previous = w.current
	} else {
		w.previous = 0
	}
	w.current = 0
	w.start = w.start.Add(elapsed / w.size * w.size)
}

func (w *Window) weighted(t time.Time) float64 {
	overlap := 1 - float64(t.Sub(w.start))/float64(w.size)
	return float64(w.current) + float64(w.previous)*max(overlap, 0)
}

// Remaining returns the approximate number of events still allowed.
func (w *Window) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := w.now()
	w.rotate(t)
	return max(0, w.limit-int(w.weighted(t)+0.999999))
}

func (w *Window) allowed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := w.now()
	w.rotate(t)
	return w.weighted(t) < float64(w.limit)
}

func (w *Window) add() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rotate(w.now())
	w.current++
}
