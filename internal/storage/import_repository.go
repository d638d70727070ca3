package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveImportRecord appends an import audit record. Used for FAIL_AI records;
// SUCCESS records are written by ReplaceSchedule.
func (db *DB) SaveImportRecord(ctx context.Context, rec ImportRecord) error {
	if err := insertImport(ctx, db.conn, rec); err != nil {
		slog.ErrorContext(ctx, "failed to save import record",
			"status", rec.Status,
			"error", err)
		return err
	}
	return nil
}

func insertImport(ctx context.Context, e execer, rec ImportRecord) error {
	var termID any
	if rec.TermID > 0 {
		termID = rec.TermID
	}
	_, err := e.ExecContext(ctx, `
		INSERT INTO schedule_imports (import_id, user_id, term_id, image_url, raw_text, parsed_json, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ImportID, rec.UserID, termID, rec.ImageURL, rec.RawText, rec.ParsedJSON, rec.Status, rec.Error, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("insert import record: %w", err)
	}
	return nil
}

// HasSuccessfulImport reports whether the user has a live imported timetable.
func (db *DB) HasSuccessfulImport(ctx context.Context, userID string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schedule_imports WHERE user_id = ? AND status = 'SUCCESS'`, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count imports: %w", err)
	}
	return n > 0, nil
}

// LatestImport returns the user's newest import record of any status, or nil.
func (db *DB) LatestImport(ctx context.Context, userID string) (*ImportRecord, error) {
	var (
		rec    ImportRecord
		termID sql.NullInt64
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, import_id, user_id, term_id, image_url, raw_text, parsed_json, status, error, created_at
		FROM schedule_imports WHERE user_id = ? ORDER BY id DESC LIMIT 1`, userID).Scan(
		&rec.ID, &rec.ImportID, &rec.UserID, &termID, &rec.ImageURL, &rec.RawText,
		&rec.ParsedJSON, &rec.Status, &rec.Error, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest import: %w", err)
	}
	rec.TermID = termID.Int64
	return &rec, nil
}

// CountImportsByStatus returns the number of import records per status.
func (db *DB) CountImportsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM schedule_imports GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count imports by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan import count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
