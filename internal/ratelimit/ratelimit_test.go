package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingRecorder struct {
	drops atomic.Int32
	keys  atomic.Int32
}

func (r *countingRecorder) RecordRateLimiterDrop(string)       { r.drops.Add(1) }
func (r *countingRecorder) SetRateLimiterKeys(_ string, n int) { r.keys.Store(int32(n)) }

func TestBucket_BurstAndRefill(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	b := newBucket(3, 0.5, clock.Now)

	for i := range 3 {
		if !b.Allow() {
			t.Fatalf("request %d should pass within burst", i)
		}
	}
	if b.Allow() {
		t.Fatal("fourth request should be throttled")
	}

	clock.Advance(2 * time.Second)
	if !b.Allow() {
		t.Error("one token should refill after 2s at 0.5/s")
	}
	if b.Allow() {
		t.Error("only one token should have refilled")
	}

	clock.Advance(time.Hour)
	if got := b.Available(); got != 3 {
		t.Errorf("Available() = %v, want capped at 3", got)
	}
}

func TestBucket_WaitHonorsContext(t *testing.T) {
	t.Parallel()
	b := NewBucket(1, 0.001)
	if err := b.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.Wait(ctx); err == nil {
		t.Error("Wait() should fail when the context expires first")
	}
}

func TestWindow_Rolling(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	w := newWindow(4, 24*time.Hour, clock.Now)

	for range 4 {
		if !w.allowed() {
			t.Fatal("should allow within limit")
		}
		w.add()
	}
	if w.allowed() {
		t.Fatal("limit reached")
	}
	if w.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", w.Remaining())
	}

	// Halfway into the next window the previous count weighs 50%.
	clock.Advance(36 * time.Hour)
	if got := w.Remaining(); got != 2 {
		t.Errorf("Remaining() after 36h = %d, want 2", got)
	}

	clock.Advance(48 * time.Hour)
	if got := w.Remaining(); got != 4 {
		t.Errorf("Remaining() after idle windows = %d, want 4", got)
	}

	if NewWindow(0, time.Hour) != nil {
		t.Error("zero limit should disable the window")
	}
}

func TestKeyedLimiter_PerKey(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	rec := &countingRecorder{}
	kl := newKeyedLimiter(KeyedConfig{Name: "user", Burst: 2, RefillRate: 0.1, Recorder: rec}, clock.Now)

	if !kl.Allow("U1") || !kl.Allow("U1") {
		t.Fatal("burst of 2 should pass")
	}
	if kl.Allow("U1") {
		t.Error("third request for U1 should be dropped")
	}
	if !kl.Allow("U2") {
		t.Error("U2 has its own bucket")
	}
	if !kl.Allow("") {
		t.Error("empty key is never limited")
	}
	if rec.drops.Load() != 1 {
		t.Errorf("drops = %d, want 1", rec.drops.Load())
	}
	if kl.ActiveKeys() != 2 {
		t.Errorf("ActiveKeys() = %d, want 2", kl.ActiveKeys())
	}
}

func TestKeyedLimiter_DailyLimit(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	kl := newKeyedLimiter(KeyedConfig{Name: "llm", Burst: 10, RefillRate: 10, DailyLimit: 3}, clock.Now)

	if kl.DailyRemaining("U1") != 3 {
		t.Errorf("unknown key remaining = %d, want 3", kl.DailyRemaining("U1"))
	}
	for range 3 {
		if !kl.Allow("U1") {
			t.Fatal("within daily limit")
		}
	}
	if kl.Allow("U1") {
		t.Error("daily limit should block even with bucket tokens left")
	}
	if kl.DailyRemaining("U1") != 0 {
		t.Errorf("DailyRemaining() = %d, want 0", kl.DailyRemaining("U1"))
	}

	off := newKeyedLimiter(KeyedConfig{Burst: 1, RefillRate: 1}, clock.Now)
	if off.DailyRemaining("U1") != -1 {
		t.Error("disabled daily limit should report -1")
	}
}

func TestKeyedLimiter_Sweep(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	rec := &countingRecorder{}
	kl := newKeyedLimiter(KeyedConfig{Name: "user", Burst: 2, RefillRate: 1, Recorder: rec}, clock.Now)

	kl.Allow("idle")
	kl.Allow("busy")
	kl.Allow("busy")
	clock.Advance(time.Second)

	// idle refilled to 2, busy is at 1.
	if n := kl.sweep(); n != 1 {
		t.Errorf("sweep() kept %d keys, want 1", n)
	}
	if rec.keys.Load() != 1 {
		t.Errorf("recorded keys = %d, want 1", rec.keys.Load())
	}

	daily := newKeyedLimiter(KeyedConfig{Burst: 1, RefillRate: 1, DailyLimit: 5}, clock.Now)
	daily.Allow("U1")
	clock.Advance(time.Minute)
	if n := daily.sweep(); n != 1 {
		t.Error("keys with daily usage must survive cleanup")
	}
}

func TestKeyedLimiter_StopIdempotent(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Burst: 1, RefillRate: 1, CleanupPeriod: time.Millisecond})
	kl.Stop()
	kl.Stop()
}
