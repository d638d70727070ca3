// Package backup periodically uploads a compressed snapshot of the SQLite
// database to R2. One instance at a time holds the leader lock and the last
// run is shared through a small state object.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/garyellow/timetable-linebot-go/internal/r2client"
)

// Snapshotter writes a consistent copy of the database to a path.
// storage.DB implements it.
type Snapshotter interface {
	CreateSnapshot(ctx context.Context, destPath string) error
}

// LeaderLock is a renewable cross-instance lock. r2client.DistributedLock
// implements it.
type LeaderLock interface {
	Acquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Recorder receives backup outcomes. metrics.Metrics implements it.
type Recorder interface {
	RecordBackup(status string, d time.Duration)
}

// Config configures a Runner.
type Config struct {
	Key          string        // object key of the compressed snapshot
	Interval     time.Duration // time between backups
	InitialDelay time.Duration // delay before the first attempt
	LockTTL      time.Duration
	TempDir      string
}

// Runner performs backups.
type Runner struct {
	db       Snapshotter
	store    ObjectStore
	state    *StateStore
	newLock  func() LeaderLock
	recorder Recorder
	cfg      Config
	now      func() time.Time
}

// ErrSkipped is returned by RunOnce when another instance holds the lock
// or a backup is not due yet.
var ErrSkipped = errors.New("backup: skipped")

// New creates a runner. newLock returns a fresh leader lock per attempt.
// recorder may be nil.
func New(db Snapshotter, store ObjectStore, newLock func() LeaderLock, recorder Recorder, cfg Config) (*Runner, error) {
	if db == nil || store == nil || newLock == nil {
		return nil, errors.New("backup: database, object store and lock are required")
	}
	if cfg.Key == "" {
		return nil, errors.New("backup: object key is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	state, err := NewStateStore(store, cfg.Key+".state.json", 30*time.Second)
	if err != nil {
		return nil, err
	}
	return &Runner{
		db:       db,
		store:    store,
		state:    state,
		newLock:  newLock,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// NewR2 creates a runner backed by an R2 client, using lockKey for the
// leader lock.
func NewR2(db Snapshotter, client *r2client.Client, lockKey string, recorder Recorder, cfg Config) (*Runner, error) {
	if client == nil {
		return nil, errors.New("backup: r2 client is required")
	}
	ttl := cfg.LockTTL
	return New(db, client, func() LeaderLock {
		return r2client.NewDistributedLock(client, lockKey, ttl)
	}, recorder, cfg)
}

// Run waits for the initial delay, then backs up once per interval until
// ctx is canceled.
func (r *Runner) Run(ctx context.Context) {
	slog.InfoContext(ctx, "backup runner started", "interval", r.cfg.Interval, "key", r.cfg.Key)
	if r.cfg.InitialDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.InitialDelay):
		}
	}
	r.runLogged(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("backup runner stopped")
			return
		case <-ticker.C:
			r.runLogged(ctx)
		}
	}
}

func (r *Runner) runLogged(ctx context.Context) {
	etag, err := r.RunOnce(ctx)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "backup uploaded", "key", r.cfg.Key, "etag", etag)
	case errors.Is(err, ErrSkipped):
		slog.DebugContext(ctx, "backup skipped", "reason", err)
	case errors.Is(err, context.Canceled):
	default:
		slog.ErrorContext(ctx, "backup failed", "error", err)
	}
}

// RunOnce takes the leader lock and uploads a snapshot if the last shared
// backup is older than the interval. It returns the uploaded object's ETag.
func (r *Runner) RunOnce(ctx context.Context) (string, error) {
	lock := r.newLock()
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		r.record("error", 0)
		return "", fmt.Errorf("backup: acquire lock: %w", err)
	}
	if !acquired {
		r.record("skipped", 0)
		return "", fmt.Errorf("%w: lock held by another instance", ErrSkipped)
	}
	renewCtx, stopRenew := context.WithCancel(ctx)
	renewDone := make(chan struct{})
	go r.renewLoop(renewCtx, lock, renewDone)
	defer func() {
		stopRenew()
		<-renewDone
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			slog.WarnContext(ctx, "backup lock release failed", "error", err)
		}
	}()

	state, _, _, err := r.state.Load(ctx)
	if err != nil {
		r.record("error", 0)
		return "", err
	}
	if state.LastBackup > 0 {
		since := r.now().Sub(time.Unix(state.LastBackup, 0))
		// Ticks drift between instances; allow a tenth of slack.
		if since < r.cfg.Interval-r.cfg.Interval/10 {
			r.record("skipped", 0)
			return "", fmt.Errorf("%w: last backup %s ago", ErrSkipped, since.Round(time.Second))
		}
	}

	start := r.now()
	etag, size, err := r.upload(ctx)
	if err != nil {
		r.record("error", r.now().Sub(start))
		return "", err
	}
	if err := r.state.Update(ctx, func(s *State) {
		s.LastBackup = r.now().UTC().Unix()
		s.LastETag = etag
		s.Bytes = size
	}); err != nil {
		// The object is uploaded; only the bookkeeping failed.
		slog.WarnContext(ctx, "backup state update failed", "error", err)
	}
	r.record("success", r.now().Sub(start))
	return etag, nil
}

// upload snapshots, compresses and uploads the database.
func (r *Runner) upload(ctx context.Context) (string, int64, error) {
	snapshotPath := filepath.Join(r.cfg.TempDir, fmt.Sprintf("backup_%d.db", r.now().UnixNano()))
	if err := r.db.CreateSnapshot(ctx, snapshotPath); err != nil {
		return "", 0, fmt.Errorf("backup: create snapshot: %w", err)
	}
	defer os.Remove(snapshotPath)

	compressedPath := snapshotPath + ".zst"
	if err := r2client.CompressFile(snapshotPath, compressedPath); err != nil {
		return "", 0, fmt.Errorf("backup: compress: %w", err)
	}
	defer os.Remove(compressedPath)

	f, err := os.Open(compressedPath)
	if err != nil {
		return "", 0, fmt.Errorf("backup: open compressed file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("backup: stat compressed file: %w", err)
	}

	etag, err := r.store.Upload(ctx, r.cfg.Key, f, "application/zstd")
	if err != nil {
		return "", 0, fmt.Errorf("backup: upload: %w", err)
	}
	return etag, info.Size(), nil
}

func (r *Runner) renewLoop(ctx context.Context, lock LeaderLock, done chan struct{}) {
	defer close(done)
	interval := max(r.cfg.LockTTL/3, 10*time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewed, err := lock.Renew(ctx)
			if err != nil {
				slog.WarnContext(ctx, "backup lock renew failed", "error", err)
				return
			}
			if !renewed {
				slog.WarnContext(ctx, "backup lock lost during renew")
				return
			}
		}
	}
}

func (r *Runner) record(status string, d time.Duration) {
	if r.recorder != nil {
		r.recorder.RecordBackup(status, d)
	}
}
