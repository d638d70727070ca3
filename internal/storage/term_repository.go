package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const dateLayout = time.DateOnly

const termColumns = `id, user_id, name, start_date, total_weeks, created_at, updated_at`

// EnsureTerm creates the (user, name) term or overwrites its start date and
// total weeks when it already exists.
func (db *DB) EnsureTerm(ctx context.Context, userID, name string, startDate time.Time, totalWeeks *int) (*Term, error) {
	start := time.Now()
	term, err := upsertTerm(ctx, db.conn, userID, TermSpec{Name: name, StartDate: startDate, TotalWeeks: totalWeeks})
	if err != nil {
		slog.ErrorContext(ctx, "failed to upsert term",
			"term", name,
			"error", err)
		return nil, err
	}
	warnIfSlow(ctx, "EnsureTerm", start, "term", name)
	return term, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsertTerm(ctx context.Context, q queryer, userID string, ts TermSpec) (*Term, error) {
	query := `
		INSERT INTO terms (user_id, name, start_date, total_weeks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET
			start_date = excluded.start_date,
			total_weeks = excluded.total_weeks,
			updated_at = excluded.updated_at
	`
	now := time.Now().UnixNano()
	if _, err := q.ExecContext(ctx, query, userID, ts.Name, ts.StartDate.Format(dateLayout), nullableInt(ts.TotalWeeks), now, now); err != nil {
		return nil, fmt.Errorf("upsert term: %w", err)
	}
	row := q.QueryRowContext(ctx, `SELECT `+termColumns+` FROM terms WHERE user_id = ? AND name = ?`, userID, ts.Name)
	term, err := scanTerm(row)
	if err != nil {
		return nil, fmt.Errorf("read term: %w", err)
	}
	return term, nil
}

// GetTerm returns a term by id, or nil when it does not exist or belongs to
// another user.
func (db *DB) GetTerm(ctx context.Context, userID string, id int64) (*Term, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+termColumns+` FROM terms WHERE id = ? AND user_id = ?`, id, userID)
	term, err := scanTerm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to query term", "term_id", id, "error", err)
		return nil, fmt.Errorf("query term: %w", err)
	}
	return term, nil
}

// LatestTermAtOrBefore returns the user's term with the latest start date
// not after date, or nil when none exists.
func (db *DB) LatestTermAtOrBefore(ctx context.Context, userID string, date time.Time) (*Term, error) {
	query := `SELECT ` + termColumns + ` FROM terms
		WHERE user_id = ? AND start_date <= ?
		ORDER BY start_date DESC, id DESC LIMIT 1`
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, query, userID, date.Format(dateLayout))
	term, err := scanTerm(row)
	warnIfSlow(ctx, "LatestTermAtOrBefore", start)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve term", "date", date.Format(dateLayout), "error", err)
		return nil, fmt.Errorf("resolve term: %w", err)
	}
	return term, nil
}

// LatestTerm returns the user's most recently created or updated term, or nil.
func (db *DB) LatestTerm(ctx context.Context, userID string) (*Term, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+termColumns+` FROM terms WHERE user_id = ? ORDER BY updated_at DESC, id DESC LIMIT 1`, userID)
	term, err := scanTerm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest term: %w", err)
	}
	return term, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTerm(row rowScanner) (*Term, error) {
	var (
		t          Term
		startDate  string
		totalWeeks sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &startDate, &totalWeeks, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return nil, fmt.Errorf("term %d: bad start_date %q: %w", t.ID, startDate, err)
	}
	t.StartDate = d
	if totalWeeks.Valid {
		w := int(totalWeeks.Int64)
		t.TotalWeeks = &w
	}
	return &t, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}
