package r2client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// conditionalStore is the subset of Client the lock needs.
type conditionalStore interface {
	PutObjectIfNotExists(ctx context.Context, key string, body io.Reader, contentType string) (bool, string, error)
	PutObjectIfMatch(ctx context.Context, key string, body io.Reader, etag, contentType string) (bool, string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	DeleteObject(ctx context.Context, key string) error
}

// LockInfo is the JSON body of a lock object.
type LockInfo struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DistributedLock is a TTL lock stored as an R2 object. A lock whose TTL has
// passed may be taken over by another owner.
type DistributedLock struct {
	store   conditionalStore
	key     string
	ttl     time.Duration
	ownerID string
	now     func() time.Time

	mu   sync.Mutex
	etag string
}

// NewDistributedLock creates a lock on key with a fresh owner id.
func NewDistributedLock(client *Client, key string, ttl time.Duration) *DistributedLock {
	return newDistributedLock(client, key, ttl)
}

func newDistributedLock(store conditionalStore, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		store:   store,
		key:     key,
		ttl:     ttl,
		ownerID: uuid.NewString(),
		now:     time.Now,
	}
}

// LockFactory returns a constructor for per-user import locks under prefix.
func LockFactory(client *Client, prefix string, ttl time.Duration) func(key string) *DistributedLock {
	return func(key string) *DistributedLock {
		return NewDistributedLock(client, prefix+key+".lock", ttl)
	}
}

// Acquire tries once to take the lock. It reports false when another owner
// holds an unexpired lock.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := l.body()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}

	created, etag, err := l.store.PutObjectIfNotExists(ctx, l.key, bytes.NewReader(data), "application/json")
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if created {
		l.etag = etag
		return true, nil
	}

	info, oldETag, err := l.read(ctx)
	if errors.Is(err, ErrNotFound) {
		// Released between our write and read; the next attempt can create it.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire lock: check expired: %w", err)
	}
	if info != nil && !l.now().After(info.ExpiresAt) {
		return false, nil
	}

	data, err = l.body()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	stolen, newETag, err := l.store.PutObjectIfMatch(ctx, l.key, bytes.NewReader(data), oldETag, "application/json")
	if err != nil {
		return false, fmt.Errorf("acquire lock: steal: %w", err)
	}
	if stolen {
		l.etag = newETag
	}
	return stolen, nil
}

// Renew extends the TTL if the lock is still ours.
func (l *DistributedLock) Renew(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.etag == "" {
		return false, nil
	}
	data, err := l.body()
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	updated, newETag, err := l.store.PutObjectIfMatch(ctx, l.key, bytes.NewReader(data), l.etag, "application/json")
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	if !updated {
		l.etag = ""
		return false, nil
	}
	l.etag = newETag
	return true, nil
}

// Release deletes the lock object if it still names us as owner.
func (l *DistributedLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.etag = ""

	info, _, err := l.read(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release lock: verify: %w", err)
	}
	if info != nil && info.Owner != l.ownerID {
		return nil
	}
	return l.store.DeleteObject(ctx, l.key)
}

// OwnerID returns the unique id written into the lock object.
func (l *DistributedLock) OwnerID() string {
	return l.ownerID
}

func (l *DistributedLock) body() ([]byte, error) {
	return json.Marshal(LockInfo{Owner: l.ownerID, ExpiresAt: l.now().Add(l.ttl)})
}

// read returns the current lock info. A nil info means the body was not
// valid JSON and the lock counts as expired.
func (l *DistributedLock) read(ctx context.Context) (*LockInfo, string, error) {
	body, etag, err := l.store.Download(ctx, l.key)
	if err != nil {
		return nil, "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read lock: %w", err)
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, etag, nil
	}
	return &info, etag, nil
}
