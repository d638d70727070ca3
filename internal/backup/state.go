package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/garyellow/timetable-linebot-go/internal/r2client"
)

// State is the shared record of the last successful backup.
type State struct {
	LastBackup int64  `json:"last_backup"`
	LastETag   string `json:"last_etag,omitempty"`
	Bytes      int64  `json:"bytes,omitempty"`
	UpdatedAt  int64  `json:"updated_at"`
}

// ObjectStore is the subset of r2client.Client the backup package needs.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	PutObjectIfNotExists(ctx context.Context, key string, body io.Reader, contentType string) (bool, string, error)
	PutObjectIfMatch(ctx context.Context, key string, body io.Reader, etag, contentType string) (bool, string, error)
}

// StateStore keeps State in one object and updates it with ETag
// compare-and-swap, so several instances agree on when the last backup ran.
type StateStore struct {
	client         ObjectStore
	key            string
	requestTimeout time.Duration
	now            func() time.Time
}

// NewStateStore creates a state store at key.
func NewStateStore(client ObjectStore, key string, requestTimeout time.Duration) (*StateStore, error) {
	if client == nil {
		return nil, errors.New("backup: object store is required")
	}
	if key == "" {
		return nil, errors.New("backup: state key is required")
	}
	return &StateStore{client: client, key: key, requestTimeout: requestTimeout, now: time.Now}, nil
}

// Load returns the state and its ETag. exists is false when the object is
// missing. Transient errors are retried twice; cancellation is not.
func (s *StateStore) Load(ctx context.Context) (State, string, bool, error) {
	const attempts = 3
	var lastErr error
	for attempt := range attempts {
		state, etag, exists, err := s.loadOnce(ctx)
		if err == nil {
			return state, etag, exists, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return State{}, "", false, err
		}
		lastErr = err
		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return State{}, "", false, ctx.Err()
			case <-time.After(100 * time.Millisecond * time.Duration(attempt+1)):
			}
		}
	}
	return State{}, "", false, lastErr
}

func (s *StateStore) loadOnce(ctx context.Context) (State, string, bool, error) {
	readCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	body, etag, err := s.client.Download(readCtx, s.key)
	if err != nil {
		if errors.Is(err, r2client.ErrNotFound) {
			return State{}, "", false, nil
		}
		return State{}, "", false, fmt.Errorf("backup: download state: %w", err)
	}
	defer func() {
		_ = body.Close()
	}()

	var state State
	if err := json.NewDecoder(body).Decode(&state); err != nil {
		return State{}, "", false, fmt.Errorf("backup: decode state: %w", err)
	}
	return state, etag, true, nil
}

// ensure returns the state and ETag, creating an empty record if needed.
func (s *StateStore) ensure(ctx context.Context) (State, string, error) {
	state, etag, exists, err := s.Load(ctx)
	if err != nil {
		return State{}, "", err
	}
	if exists {
		return state, etag, nil
	}

	state = State{UpdatedAt: s.now().UTC().Unix()}
	data, err := json.Marshal(state)
	if err != nil {
		return State{}, "", fmt.Errorf("backup: marshal state: %w", err)
	}
	writeCtx, cancel := s.withTimeout(ctx)
	created, createdETag, err := s.client.PutObjectIfNotExists(writeCtx, s.key, bytes.NewReader(data), "application/json")
	cancel()
	if err != nil {
		return State{}, "", fmt.Errorf("backup: create state: %w", err)
	}
	if created {
		return state, createdETag, nil
	}

	// Another instance created it first.
	state, etag, exists, err = s.Load(ctx)
	if err != nil {
		return State{}, "", err
	}
	if !exists {
		return State{}, "", errors.New("backup: state missing after create race")
	}
	return state, etag, nil
}

// Update applies updater under ETag compare-and-swap, retrying lost races.
func (s *StateStore) Update(ctx context.Context, updater func(*State)) error {
	for range 3 {
		state, etag, err := s.ensure(ctx)
		if err != nil {
			return err
		}
		updater(&state)
		state.UpdatedAt = s.now().UTC().Unix()

		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("backup: marshal state: %w", err)
		}
		writeCtx, cancel := s.withTimeout(ctx)
		updated, _, err := s.client.PutObjectIfMatch(writeCtx, s.key, bytes.NewReader(data), etag, "application/json")
		cancel()
		if err != nil {
			return fmt.Errorf("backup: update state: %w", err)
		}
		if updated {
			return nil
		}
	}
	return errors.New("backup: failed to update state after retries")
}

func (s *StateStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.requestTimeout)
}
