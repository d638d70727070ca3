package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const subscriptionColumns = `user_id, subscribed, timezone, daily_time, last_sent_date, updated_at`

// GetSubscription returns the user's digest preference, or nil when the
// user never configured one.
func (db *DB) GetSubscription(ctx context.Context, userID string) (*Subscription, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ?`, userID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to query subscription", "error", err)
		return nil, fmt.Errorf("query subscription: %w", err)
	}
	return sub, nil
}

// SaveSubscription upserts a preference. LastSentDate is left untouched on
// update.
func (db *DB) SaveSubscription(ctx context.Context, sub *Subscription) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, subscribed, timezone, daily_time, last_sent_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			subscribed = excluded.subscribed,
			timezone = excluded.timezone,
			daily_time = excluded.daily_time,
			updated_at = excluded.updated_at`,
		sub.UserID, boolToInt(sub.Subscribed), sub.Timezone, sub.DailyTime, sub.LastSentDate, time.Now().Unix())
	if err != nil {
		slog.ErrorContext(ctx, "failed to save subscription", "error", err)
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// ListSubscribed returns every subscribed preference.
func (db *DB) ListSubscribed(ctx context.Context) ([]Subscription, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscribed = 1 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	warnIfSlow(ctx, "ListSubscribed", start, "count", len(subs))
	return subs, rows.Err()
}

// MarkDigestSent records the local date a digest was delivered.
func (db *DB) MarkDigestSent(ctx context.Context, userID, date string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE subscriptions SET last_sent_date = ?, updated_at = ? WHERE user_id = ?`,
		date, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("mark digest sent: %w", err)
	}
	return nil
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var (
		sub        Subscription
		subscribed int
	)
	if err := row.Scan(&sub.UserID, &subscribed, &sub.Timezone, &sub.DailyTime, &sub.LastSentDate, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.Subscribed = subscribed == 1
	return &sub, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
