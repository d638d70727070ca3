package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingRecorder struct {
	hits, misses atomic.Int32
}

func (r *countingRecorder) RecordCacheHit(string)  { r.hits.Add(1) }
func (r *countingRecorder) RecordCacheMiss(string) { r.misses.Add(1) }

// countingQuerier counts calls and returns one canned entry.
type countingQuerier struct {
	calls atomic.Int32
	delay time.Duration
}

func (q *countingQuerier) Day(context.Context, string, time.Time) ([]Entry, error) {
	q.calls.Add(1)
	time.Sleep(q.delay)
	return []Entry{{CourseName: "网络安全"}}, nil
}

func (q *countingQuerier) Week(context.Context, string, *time.Time, *int) ([]Entry, error) {
	q.calls.Add(1)
	return []Entry{{CourseName: "写作"}}, nil
}

func newTestCache(q Querier, rec CacheRecorder) *CachedEngine {
	return &CachedEngine{
		next:     q,
		today:    func() time.Time { return time.Date(2026, 9, 8, 9, 0, 0, 0, cst) },
		cache:    newGoCache(time.Minute),
		recorder: rec,
	}
}

func TestCachedEngine_HitsAfterFirstLoad(t *testing.T) {
	t.Parallel()
	q := &countingQuerier{}
	rec := &countingRecorder{}
	c := newTestCache(q, rec)
	ctx := context.Background()
	d := date(t, "2026-09-07")

	for range 3 {
		got, err := c.Day(ctx, "U1", d)
		if err != nil || len(got) != 1 {
			t.Fatalf("Day() = %v, %v", got, err)
		}
	}
	if q.calls.Load() != 1 {
		t.Errorf("underlying calls = %d, want 1", q.calls.Load())
	}
	if rec.hits.Load() != 2 || rec.misses.Load() != 1 {
		t.Errorf("hits/misses = %d/%d, want 2/1", rec.hits.Load(), rec.misses.Load())
	}
}

func TestCachedEngine_InvalidateIsPerUser(t *testing.T) {
	t.Parallel()
	q := &countingQuerier{}
	c := newTestCache(q, nil)
	ctx := context.Background()

	_, _ = c.Week(ctx, "U1", nil, nil)
	_, _ = c.Week(ctx, "U2", nil, nil)
	c.Invalidate("U1")
	_, _ = c.Week(ctx, "U1", nil, nil)
	_, _ = c.Week(ctx, "U2", nil, nil)

	if q.calls.Load() != 3 {
		t.Errorf("underlying calls = %d, want 3", q.calls.Load())
	}

	c.Flush()
	_, _ = c.Week(ctx, "U2", nil, nil)
	if q.calls.Load() != 4 {
		t.Errorf("after Flush calls = %d, want 4", q.calls.Load())
	}
}

func TestCachedEngine_WeekKeyIncludesWeek(t *testing.T) {
	t.Parallel()
	q := &countingQuerier{}
	c := newTestCache(q, nil)
	ctx := context.Background()

	_, _ = c.Week(ctx, "U1", nil, intPtr(3))
	_, _ = c.Week(ctx, "U1", nil, intPtr(4))
	_, _ = c.Week(ctx, "U1", nil, intPtr(3))
	if q.calls.Load() != 2 {
		t.Errorf("underlying calls = %d, want 2", q.calls.Load())
	}
}

func TestCachedEngine_CoalescesConcurrentLoads(t *testing.T) {
	t.Parallel()
	q := &countingQuerier{delay: 50 * time.Millisecond}
	c := newTestCache(q, nil)
	ctx := context.Background()
	d := date(t, "2026-09-07")

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			if _, err := c.Day(ctx, "U1", d); err != nil {
				t.Errorf("Day() = %v", err)
			}
		})
	}
	wg.Wait()
	if n := q.calls.Load(); n != 1 {
		t.Errorf("underlying calls = %d, want 1", n)
	}
}

func TestCachedEngine_CanceledContext(t *testing.T) {
	t.Parallel()
	c := newTestCache(&countingQuerier{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Day(ctx, "U1", date(t, "2026-09-07")); err == nil {
		t.Error("expected context error")
	}
}

func TestCachedEngine_WrapsEngine(t *testing.T) {
	t.Parallel()
	e, _ := newSeededEngine(t)
	c := NewCachedEngine(e, time.Minute, nil)

	got, err := c.Day(context.Background(), "U1", date(t, "2026-09-07"))
	if err != nil || len(got) != 2 {
		t.Errorf("Day() = %v, %v", names(got), err)
	}
}
