package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/garyellow/timetable-linebot-go/internal/timetable"
)

const itemColumns = `id, user_id, term_id, course_id, day_of_week, section_start, section_count,
	week_start, week_end, parity, classroom, campus, remark, raw_time_expr`

const courseColumns = `id, user_id, term_id, name, code, teacher, credit, color_tag`

// TermSpec names a term and the calendar it starts.
type TermSpec struct {
	Name       string
	StartDate  time.Time
	TotalWeeks *int
}

// ScheduleSet is a freshly parsed timetable ready to replace a user's data.
// When Term is set the term is upserted in the same transaction and TermID
// is ignored.
type ScheduleSet struct {
	ImportID string
	UserID   string
	TermID   int64
	Term     *TermSpec
	ImageURL string
	RawText  string
	// ParsedJSON is stored verbatim on the SUCCESS import record.
	ParsedJSON string
	Courses    []timetable.Course
	Items      []timetable.Item
}

// ReplaceResult reports what ReplaceSchedule inserted.
type ReplaceResult struct {
	TermID      int64
	CourseCount int
	ItemCount   int
}

// ReplaceSchedule deletes the user's items, courses and SUCCESS import
// records, then inserts the new set and a SUCCESS record, all in one
// transaction together with the optional term upsert. Items whose course is
// missing from set.Courses get a course created on the fly.
func (db *DB) ReplaceSchedule(ctx context.Context, set ScheduleSet) (ReplaceResult, error) {
	var res ReplaceResult
	start := time.Now()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if set.Term != nil {
			term, err := upsertTerm(ctx, tx, set.UserID, *set.Term)
			if err != nil {
				return err
			}
			set.TermID = term.ID
		}
		res.TermID = set.TermID

		if err := clearUser(ctx, tx, set.UserID); err != nil {
			return err
		}

		insertCourse, err := tx.PrepareContext(ctx, `
			INSERT INTO courses (user_id, term_id, name, code, teacher)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(term_id, name, teacher) DO UPDATE SET
				code = COALESCE(courses.code, excluded.code)
			RETURNING id`)
		if err != nil {
			return fmt.Errorf("prepare course insert: %w", err)
		}
		defer func() { _ = insertCourse.Close() }()

		courseIDs := make(map[string]int64, len(set.Courses))
		upsert := func(c timetable.Course) (int64, error) {
			var id int64
			err := insertCourse.QueryRowContext(ctx, set.UserID, set.TermID, c.Name, nullableText(c.Code), c.Teacher).Scan(&id)
			if err != nil {
				return 0, fmt.Errorf("insert course %q: %w", c.Name, err)
			}
			if _, seen := courseIDs[c.Key()]; !seen {
				res.CourseCount++
			}
			courseIDs[c.Key()] = id
			return id, nil
		}
		for _, c := range set.Courses {
			if _, err := upsert(c); err != nil {
				return err
			}
		}

		insertItem, err := tx.PrepareContext(ctx, `
			INSERT INTO schedule_items (user_id, term_id, course_id, day_of_week, section_start, section_count,
				week_start, week_end, parity, classroom, campus, remark, raw_time_expr)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare item insert: %w", err)
		}
		defer func() { _ = insertItem.Close() }()

		for _, it := range set.Items {
			courseID, ok := courseIDs[it.CourseKey()]
			if !ok {
				slog.WarnContext(ctx, "schedule item without registered course",
					"course", it.CourseName)
				id, err := upsert(timetable.Course{Name: it.CourseName, Teacher: it.Teacher})
				if err != nil {
					return err
				}
				courseID = id
			}
			raw := it.RawTimeExpr
			if raw == "" {
				raw = it.Describe()
			}
			if _, err := insertItem.ExecContext(ctx, set.UserID, set.TermID, courseID, it.DayOfWeek,
				it.SectionStart, it.SectionCount, it.WeekStart, it.WeekEnd, int(it.Parity),
				it.Classroom, nullableText(it.Campus), nullableText(it.Remark), raw); err != nil {
				return fmt.Errorf("insert item %q day %d: %w", it.CourseName, it.DayOfWeek, err)
			}
			res.ItemCount++
		}

		return insertImport(ctx, tx, ImportRecord{
			ImportID:   set.ImportID,
			UserID:     set.UserID,
			TermID:     set.TermID,
			ImageURL:   set.ImageURL,
			RawText:    set.RawText,
			ParsedJSON: set.ParsedJSON,
			Status:     ImportStatusSuccess,
		})
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to replace schedule",
			"term_id", set.TermID,
			"error", err)
		return ReplaceResult{}, fmt.Errorf("replace schedule: %w", err)
	}

	warnIfSlow(ctx, "ReplaceSchedule", start,
		"courses", res.CourseCount,
		"items", res.ItemCount)
	return res, nil
}

// ClearUserSchedules deletes the user's items, courses and SUCCESS import
// records. Terms, failure records and subscriptions are kept.
func (db *DB) ClearUserSchedules(ctx context.Context, userID string) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		return clearUser(ctx, tx, userID)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to clear schedules", "error", err)
		return fmt.Errorf("clear schedules: %w", err)
	}
	return nil
}

func clearUser(ctx context.Context, tx *sql.Tx, userID string) error {
	stmts := []string{
		`DELETE FROM schedule_items WHERE user_id = ?`,
		`DELETE FROM courses WHERE user_id = ?`,
		`DELETE FROM schedule_imports WHERE user_id = ? AND status = 'SUCCESS'`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, userID); err != nil {
			return fmt.Errorf("clear user data: %w", err)
		}
	}
	return nil
}

// ItemsForWeek returns the term's items active in week: weekStart ≤ week ≤
// weekEnd and parity 0 or matching the week. day 0 means every weekday.
// Rows come back in insertion order.
func (db *DB) ItemsForWeek(ctx context.Context, userID string, termID int64, week, day int) ([]ScheduleItem, error) {
	query := `SELECT ` + itemColumns + ` FROM schedule_items
		WHERE user_id = ? AND term_id = ? AND week_start <= ? AND week_end >= ?
			AND (parity = 0 OR parity = ?)`
	args := []any{userID, termID, week, week, int(timetable.ParityOf(week))}
	if day > 0 {
		query += ` AND day_of_week = ?`
		args = append(args, day)
	}
	query += ` ORDER BY id`

	start := time.Now()
	items, err := db.queryItems(ctx, query, args...)
	warnIfSlow(ctx, "ItemsForWeek", start, "week", week, "day", day)
	if err != nil {
		slog.ErrorContext(ctx, "failed to query items", "week", week, "day", day, "error", err)
		return nil, err
	}
	return items, nil
}

// ListItems returns every item of the term ordered by day and section.
func (db *DB) ListItems(ctx context.Context, userID string, termID int64) ([]ScheduleItem, error) {
	query := `SELECT ` + itemColumns + ` FROM schedule_items
		WHERE user_id = ? AND term_id = ?
		ORDER BY day_of_week, section_start, id`
	return db.queryItems(ctx, query, userID, termID)
}

// GetItem returns the user's item by id, or nil when it does not exist or
// belongs to someone else.
func (db *DB) GetItem(ctx context.Context, userID string, id int64) (*ScheduleItem, error) {
	items, err := db.queryItems(ctx, `SELECT `+itemColumns+` FROM schedule_items WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// UpdateItemSections rewrites the section range and display string of an
// item owned by userID. It reports false when no such item exists.
func (db *DB) UpdateItemSections(ctx context.Context, userID string, id int64, sectionStart, sectionCount int, rawTimeExpr string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE schedule_items SET section_start = ?, section_count = ?, raw_time_expr = ?
		WHERE id = ? AND user_id = ?`,
		sectionStart, sectionCount, rawTimeExpr, id, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to update item sections", "item_id", id, "error", err)
		return false, fmt.Errorf("update item sections: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update item sections: %w", err)
	}
	return n > 0, nil
}

func (db *DB) queryItems(ctx context.Context, query string, args ...any) ([]ScheduleItem, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []ScheduleItem
	for rows.Next() {
		var (
			it     ScheduleItem
			campus sql.NullString
			remark sql.NullString
		)
		if err := rows.Scan(&it.ID, &it.UserID, &it.TermID, &it.CourseID, &it.DayOfWeek,
			&it.SectionStart, &it.SectionCount, &it.WeekStart, &it.WeekEnd, &it.Parity,
			&it.Classroom, &campus, &remark, &it.RawTimeExpr); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Campus = stringPtr(campus)
		it.Remark = stringPtr(remark)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// CoursesByIDs returns the user's courses keyed by id. Unknown ids are
// absent from the map.
func (db *DB) CoursesByIDs(ctx context.Context, userID string, ids []int64) (map[int64]Course, error) {
	out := make(map[int64]Course, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	courses, err := db.queryCourses(ctx, `SELECT `+courseColumns+` FROM courses WHERE user_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		slog.ErrorContext(ctx, "failed to query courses", "count", len(ids), "error", err)
		return nil, err
	}
	for _, c := range courses {
		out[c.ID] = c
	}
	return out, nil
}

// ListCourses returns the term's courses in insertion order.
func (db *DB) ListCourses(ctx context.Context, userID string, termID int64) ([]Course, error) {
	return db.queryCourses(ctx, `SELECT `+courseColumns+` FROM courses WHERE user_id = ? AND term_id = ? ORDER BY id`, userID, termID)
}

func (db *DB) queryCourses(ctx context.Context, query string, args ...any) ([]Course, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var courses []Course
	for rows.Next() {
		var (
			c        Course
			code     sql.NullString
			teacher  string
			credit   sql.NullFloat64
			colorTag sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.TermID, &c.Name, &code, &teacher, &credit, &colorTag); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		c.Code = stringPtr(code)
		if teacher != "" {
			c.Teacher = &teacher
		}
		if credit.Valid {
			v := credit.Float64
			c.Credit = &v
		}
		c.ColorTag = stringPtr(colorTag)
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return courses, nil
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
