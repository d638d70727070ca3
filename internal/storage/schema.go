package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates all necessary tables and indexes.
func InitSchema(ctx context.Context, db *sql.DB) error {
	steps := []struct {
		name  string
		query string
	}{
		{"terms", termsTable},
		{"courses", coursesTable},
		{"schedule_items", scheduleItemsTable},
		{"schedule_imports", scheduleImportsTable},
		{"subscriptions", subscriptionsTable},
	}
	for _, s := range steps {
		if _, err := db.ExecContext(ctx, s.query); err != nil {
			return fmt.Errorf("failed to create %s table: %w", s.name, err)
		}
	}
	return nil
}

const termsTable = `
	CREATE TABLE IF NOT EXISTS terms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		total_weeks INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(user_id, name)
	);
	CREATE INDEX IF NOT EXISTS idx_terms_user_start ON terms(user_id, start_date);
`

// teacher is an empty string rather than NULL so the unique key treats a missing teacher
// as one value.
const coursesTable = `
	CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		term_id INTEGER NOT NULL REFERENCES terms(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		code TEXT,
		teacher TEXT NOT NULL DEFAULT '',
		credit REAL,
		color_tag TEXT,
		UNIQUE(term_id, name, teacher)
	);
	CREATE INDEX IF NOT EXISTS idx_courses_user ON courses(user_id);
`

const scheduleItemsTable = `
	CREATE TABLE IF NOT EXISTS schedule_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		term_id INTEGER NOT NULL REFERENCES terms(id) ON DELETE CASCADE,
		course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		day_of_week INTEGER NOT NULL CHECK(day_of_week BETWEEN 1 AND 7),
		section_start INTEGER NOT NULL CHECK(section_start >= 1),
		section_count INTEGER NOT NULL CHECK(section_count >= 1),
		week_start INTEGER NOT NULL,
		week_end INTEGER NOT NULL,
		parity INTEGER NOT NULL DEFAULT 0 CHECK(parity IN (0, 1, 2)),
		classroom TEXT NOT NULL DEFAULT '',
		campus TEXT,
		remark TEXT,
		raw_time_expr TEXT NOT NULL DEFAULT '',
		CHECK(week_start <= week_end)
	);
	CREATE INDEX IF NOT EXISTS idx_items_user_term_day ON schedule_items(user_id, term_id, day_of_week);
	CREATE INDEX IF NOT EXISTS idx_items_course ON schedule_items(course_id);
`

const scheduleImportsTable = `
	CREATE TABLE IF NOT EXISTS schedule_imports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		import_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		term_id INTEGER,
		image_url TEXT NOT NULL DEFAULT '',
		raw_text TEXT NOT NULL DEFAULT '',
		parsed_json TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK(status IN ('SUCCESS', 'FAIL_AI')),
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_imports_user_status ON schedule_imports(user_id, status);
`

const subscriptionsTable = `
	CREATE TABLE IF NOT EXISTS subscriptions (
		user_id TEXT PRIMARY KEY,
		subscribed INTEGER NOT NULL DEFAULT 0,
		timezone TEXT NOT NULL DEFAULT 'Asia/Shanghai',
		daily_time TEXT NOT NULL DEFAULT '07:00',
		last_sent_date TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_subscribed ON subscriptions(subscribed);
`
