// Package lease provides per-key exclusive leases with a bounded wait. The
// importer holds one per user so a user never runs two imports at once.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBusy is returned when the lease could not be taken within the wait.
var ErrBusy = errors.New("lease: busy")

// Release gives a lease back. It must be called exactly once.
type Release func()

// Locker hands out exclusive leases keyed by string.
type Locker interface {
	Acquire(ctx context.Context, key string, wait time.Duration) (Release, error)
}

// WaitRecorder observes how long acquisitions waited. metrics.Metrics
// implements it.
type WaitRecorder interface {
	RecordLeaseWait(outcome string, d time.Duration)
}

type slot struct {
	ch   chan struct{}
	refs int
}

// Keyed is an in-process Locker. Slots are created on demand and removed
// once nobody holds or waits for them.
type Keyed struct {
	mu       sync.Mutex
	slots    map[string]*slot
	recorder WaitRecorder
}

// NewKeyed creates an in-process locker. recorder may be nil.
func NewKeyed(recorder WaitRecorder) *Keyed {
	return &Keyed{slots: make(map[string]*slot), recorder: recorder}
}

// Acquire waits up to wait for the key. It returns ErrBusy on timeout and
// ctx.Err() when ctx ends first.
func (k *Keyed) Acquire(ctx context.Context, key string, wait time.Duration) (Release, error) {
	start := time.Now()
	s := k.ref(key)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		k.observe("acquired", start)
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				k.unref(key, s)
			})
		}, nil
	case <-timer.C:
		k.unref(key, s)
		k.observe("busy", start)
		return nil, ErrBusy
	case <-ctx.Done():
		k.unref(key, s)
		k.observe("canceled", start)
		return nil, ctx.Err()
	}
}

// Len returns the number of live slots.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

func (k *Keyed) ref(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *Keyed) unref(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 && k.slots[key] == s {
		delete(k.slots, key)
	}
}

func (k *Keyed) observe(outcome string, start time.Time) {
	if k.recorder != nil {
		k.recorder.RecordLeaseWait(outcome, time.Since(start))
	}
}
