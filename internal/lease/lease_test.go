package lease

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) RecordLeaseWait(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func TestKeyed_ExclusivePerKey(t *testing.T) {
	t.Parallel()
	k := NewKeyed(nil)
	ctx := context.Background()

	release, err := k.Acquire(ctx, "U1", time.Second)
	if err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	if _, err := k.Acquire(ctx, "U1", 20*time.Millisecond); !errors.Is(err, ErrBusy) {
		t.Errorf("second Acquire() = %v, want ErrBusy", err)
	}
	other, err := k.Acquire(ctx, "U2", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("other key Acquire() = %v", err)
	}
	other()

	release()
	release() // second call is a no-op

	again, err := k.Acquire(ctx, "U1", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire() after release = %v", err)
	}
	again()

	if k.Len() != 0 {
		t.Errorf("Len() = %d, want slots cleaned up", k.Len())
	}
}

func TestKeyed_WaiterGetsLeaseOnRelease(t *testing.T) {
	t.Parallel()
	rec := &outcomeRecorder{}
	k := NewKeyed(rec)
	ctx := context.Background()

	release, err := k.Acquire(ctx, "U1", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		r, err := k.Acquire(ctx, "U1", 2*time.Second)
		if err == nil {
			r()
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	release()
	if err := <-done; err != nil {
		t.Errorf("waiter Acquire() = %v", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.outcomes) != 2 || rec.outcomes[0] != "acquired" || rec.outcomes[1] != "acquired" {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
}

func TestKeyed_ContextCanceled(t *testing.T) {
	t.Parallel()
	k := NewKeyed(nil)
	release, _ := k.Acquire(context.Background(), "U1", time.Second)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := k.Acquire(ctx, "U1", time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() = %v, want context.Canceled", err)
	}
}

func TestKeyed_SerializesConcurrentHolders(t *testing.T) {
	t.Parallel()
	k := NewKeyed(nil)
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			release, err := k.Acquire(context.Background(), "U1", 5*time.Second)
			if err != nil {
				t.Errorf("Acquire() = %v", err)
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		})
	}
	wg.Wait()
	if maxInside.Load() != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside.Load())
	}
}

// fakeRemote becomes available after a number of failed attempts.
type fakeRemote struct {
	failures atomic.Int32
	released atomic.Bool
	err      error
}

func (f *fakeRemote) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.failures.Add(-1) >= 0 {
		return false, nil
	}
	return true, nil
}

func (f *fakeRemote) Release(context.Context) error {
	f.released.Store(true)
	return nil
}

func TestDistributed_PollsRemote(t *testing.T) {
	t.Parallel()
	remote := &fakeRemote{}
	remote.failures.Store(2)
	d := NewDistributed(NewKeyed(nil), func(string) RemoteLock { return remote })
	d.pollInterval = time.Millisecond

	release, err := d.Acquire(context.Background(), "U1", time.Second)
	if err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	release()
	if !remote.released.Load() {
		t.Error("remote lock not released")
	}
	if d.local.Len() != 0 {
		t.Error("local slot not released")
	}
}

func TestDistributed_BusyWhenRemoteHeld(t *testing.T) {
	t.Parallel()
	remote := &fakeRemote{}
	remote.failures.Store(1 << 20)
	d := NewDistributed(NewKeyed(nil), func(string) RemoteLock { return remote })
	d.pollInterval = time.Millisecond

	if _, err := d.Acquire(context.Background(), "U1", 20*time.Millisecond); !errors.Is(err, ErrBusy) {
		t.Errorf("Acquire() = %v, want ErrBusy", err)
	}
	if d.local.Len() != 0 {
		t.Error("local lease must be given back on failure")
	}
}

func TestDistributed_RemoteError(t *testing.T) {
	t.Parallel()
	boom := errors.New("r2 down")
	d := NewDistributed(NewKeyed(nil), func(string) RemoteLock { return &fakeRemote{err: boom} })
	if _, err := d.Acquire(context.Background(), "U1", time.Second); !errors.Is(err, boom) {
		t.Errorf("Acquire() = %v, want wrapped r2 error", err)
	}
}
