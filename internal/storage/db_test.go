package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyellow/timetable-linebot-go/internal/timetable"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

func intPtr(v int) *int { return &v }

// sampleSet is two courses over three items, one of them odd weeks only.
func sampleSet(userID string, termID int64) ScheduleSet {
	items := []timetable.Item{
		{CourseName: "网络安全攻防技术", Teacher: "赵洋", DayOfWeek: 1, SectionStart: 1, SectionCount: 2, WeekStart: 1, WeekEnd: 7, Classroom: "第二教学楼104"},
		{CourseName: "网络安全攻防技术", Teacher: "赵洋", DayOfWeek: 3, SectionStart: 5, SectionCount: 2, WeekStart: 1, WeekEnd: 15, Parity: timetable.OddWeeks, Classroom: "第二教学楼104"},
		{CourseName: "专业写作基础", Teacher: "张培培", DayOfWeek: 1, SectionStart: 3, SectionCount: 2, WeekStart: 1, WeekEnd: 9, Classroom: "第二教学楼408"},
	}
	return ScheduleSet{
		ImportID: "imp-1",
		UserID:   userID,
		TermID:   termID,
		RawText:  "星期一：...",
		Courses: []timetable.Course{
			{Name: "网络安全攻防技术", Code: "R0902840.01", Teacher: "赵洋"},
			{Name: "专业写作基础", Teacher: "张培培"},
		},
		Items: items,
	}
}

func TestNew_FileSystemDatabase(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "nested", "timetable.db")

	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file not created: %s", dbPath)
	}
	if db.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v", err)
	}
}

func TestCreateSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	db, err := New(ctx, filepath.Join(dir, "live.db"))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.EnsureTerm(ctx, "U1", "2026秋", mustDate(t, "2026-09-07"), intPtr(18)); err != nil {
		t.Fatalf("EnsureTerm() = %v", err)
	}

	snap := filepath.Join(dir, "snap", "copy.db")
	if err := db.CreateSnapshot(ctx, snap); err != nil {
		t.Fatalf("CreateSnapshot() = %v", err)
	}

	copyDB, err := New(ctx, snap)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer func() { _ = copyDB.Close() }()
	term, err := copyDB.LatestTerm(ctx, "U1")
	if err != nil || term == nil || term.Name != "2026秋" {
		t.Errorf("snapshot term = %+v, err = %v", term, err)
	}
}

func TestCreateSnapshot_InMemory(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	if err := db.CreateSnapshot(context.Background(), filepath.Join(t.TempDir(), "x.db")); err == nil {
		t.Error("expected error for in-memory database")
	}
}

func TestTerm_WeekOf(t *testing.T) {
	t.Parallel()
	term := Term{StartDate: mustDate(t, "2026-09-07"), TotalWeeks: intPtr(18)}
	loc := time.FixedZone("CST", 8*3600)

	tests := []struct {
		date string
		want int
	}{
		{"2026-09-06", 0},
		{"2026-09-07", 1},
		{"2026-09-13", 1},
		{"2026-09-14", 2},
		{"2027-01-10", 18},
		{"2027-01-11", 19},
	}
	for _, tt := range tests {
		d, _ := time.ParseInLocation(time.DateOnly, tt.date, loc)
		if got := term.WeekOf(d.Add(23 * time.Hour)); got != tt.want {
			t.Errorf("WeekOf(%s) = %d, want %d", tt.date, got, tt.want)
		}
	}

	if term.InRange(19) || !term.InRange(18) || term.InRange(0) {
		t.Error("InRange bounds wrong")
	}
	open := Term{}
	if !open.InRange(40) {
		t.Error("term without total weeks should accept any positive week")
	}
}
