package storage

import (
	"context"
	"time"
)

// TermRepository resolves and maintains a user's terms.
type TermRepository interface {
	EnsureTerm(ctx context.Context, userID, name string, startDate time.Time, totalWeeks *int) (*Term, error)
	GetTerm(ctx context.Context, userID string, id int64) (*Term, error)
	LatestTermAtOrBefore(ctx context.Context, userID string, date time.Time) (*Term, error)
	LatestTerm(ctx context.Context, userID string) (*Term, error)
}

// ScheduleReader is the read side used by the query engine and exports.
type ScheduleReader interface {
	LatestTermAtOrBefore(ctx context.Context, userID string, date time.Time) (*Term, error)
	ItemsForWeek(ctx context.Context, userID string, termID int64, week, day int) ([]ScheduleItem, error)
	CoursesByIDs(ctx context.Context, userID string, ids []int64) (map[int64]Course, error)
}

// ScheduleWriter is the write side used by the importer.
type ScheduleWriter interface {
	ReplaceSchedule(ctx context.Context, set ScheduleSet) (ReplaceResult, error)
	SaveImportRecord(ctx context.Context, rec ImportRecord) error
	HasSuccessfulImport(ctx context.Context, userID string) (bool, error)
	ClearUserSchedules(ctx context.Context, userID string) error
	GetItem(ctx context.Context, userID string, id int64) (*ScheduleItem, error)
	UpdateItemSections(ctx context.Context, userID string, id int64, sectionStart, sectionCount int, rawTimeExpr string) (bool, error)
}

// SubscriptionRepository stores digest preferences.
type SubscriptionRepository interface {
	GetSubscription(ctx context.Context, userID string) (*Subscription, error)
	SaveSubscription(ctx context.Context, sub *Subscription) error
	ListSubscribed(ctx context.Context) ([]Subscription, error)
	MarkDigestSent(ctx context.Context, userID, date string) error
}

var (
	_ TermRepository         = (*DB)(nil)
	_ ScheduleReader         = (*DB)(nil)
	_ ScheduleWriter         = (*DB)(nil)
	_ SubscriptionRepository = (*DB)(nil)
)
