package lease

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RemoteLock is a lock held in shared storage, such as
// r2client.DistributedLock.
type RemoteLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RemoteLockFactory returns the remote lock guarding key.
type RemoteLockFactory func(key string) RemoteLock

// Distributed serializes holders across instances: it takes the local lease
// first, then polls the remote lock until the same deadline.
type Distributed struct {
	local        *Keyed
	newLock      RemoteLockFactory
	pollInterval time.Duration
}

// NewDistributed wraps a local locker with remote locks from factory.
func NewDistributed(local *Keyed, factory RemoteLockFactory) *Distributed {
	return &Distributed{local: local, newLock: factory, pollInterval: 500 * time.Millisecond}
}

// Acquire implements Locker.
func (d *Distributed) Acquire(ctx context.Context, key string, wait time.Duration) (Release, error) {
	deadline := time.Now().Add(wait)
	releaseLocal, err := d.local.Acquire(ctx, key, wait)
	if err != nil {
		return nil, err
	}

	lock := d.newLock(key)
	for {
		ok, err := lock.Acquire(ctx)
		if err != nil {
			releaseLocal()
			return nil, fmt.Errorf("lease: remote acquire: %w", err)
		}
		if ok {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			releaseLocal()
			return nil, ErrBusy
		}
		timer := time.NewTimer(min(d.pollInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			releaseLocal()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := lock.Release(ctx); err != nil {
				slog.WarnContext(ctx, "failed to release remote lease", "key", key, "error", err)
			}
			releaseLocal()
		})
	}, nil
}
