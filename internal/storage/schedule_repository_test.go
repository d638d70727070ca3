package storage

import (
	"context"
	"testing"

	"github.com/garyellow/timetable-linebot-go/internal/timetable"
)

func seedSchedule(t *testing.T, db *DB, userID string) *Term {
	t.Helper()
	ctx := context.Background()
	term, err := db.EnsureTerm(ctx, userID, "2026秋", mustDate(t, "2026-09-07"), intPtr(18))
	if err != nil {
		t.Fatalf("EnsureTerm() = %v", err)
	}
	res, err := db.ReplaceSchedule(ctx, sampleSet(userID, term.ID))
	if err != nil {
		t.Fatalf("ReplaceSchedule() = %v", err)
	}
	if res.CourseCount != 2 || res.ItemCount != 3 {
		t.Fatalf("ReplaceSchedule() = %+v, want 2 courses 3 items", res)
	}
	return term
}

func TestReplaceSchedule_ReplacesPriorData(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()
	term := seedSchedule(t, db, "U1")

	next := ScheduleSet{
		ImportID: "imp-2",
		UserID:   "U1",
		TermID:   term.ID,
		Courses:  []timetable.Course{{Name: "马克思主义基本原理", Teacher: "郭英蕊"}},
		Items: []timetable.Item{
			{CourseName: "马克思主义基本原理", Teacher: "郭英蕊", DayOfWeek: 2, SectionStart: 1, SectionCount: 2, WeekStart: 7, WeekEnd: 7, Classroom: "第二教学楼212"},
		},
	}
	if _, err := db.ReplaceSchedule(ctx, next); err != nil {
		t.Fatalf("ReplaceSchedule() = %v", err)
	}

	items, err := db.ListItems(ctx, "U1", term.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].DayOfWeek != 2 {
		t.Fatalf("items after replace = %+v", items)
	}
	if items[0].RawTimeExpr != "7周,第1-2节,第二教学楼212" {
		t.Errorf("raw time expr = %q", items[0].RawTimeExpr)
	}
	courses, err := db.ListCourses(ctx, "U1", term.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(courses) != 1 || courses[0].Name != "马克思主义基本原理" {
		t.Errorf("courses after replace = %+v", courses)
	}
	last, err := db.LatestImport(ctx, "U1")
	if err != nil || last == nil || last.ImportID != "imp-2" || last.Status != ImportStatusSuccess {
		t.Errorf("latest import = %+v, %v", last, err)
	}
}

func TestReplaceSchedule_CreatesMissingCourse(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()
	term, err := db.EnsureTerm(ctx, "U1", "T", mustDate(t, "2026-09-07"), nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := db.ReplaceSchedule(ctx, ScheduleSet{
		UserID: "U1",
		TermID: term.ID,
		Items: []timetable.Item{
			{CourseName: "体育", DayOfWeek: 4, SectionStart: 7, SectionCount: 2, WeekStart: 1, WeekEnd: 16, Classroom: "操场"},
		},
	})
	if err != nil {
		t.Fatalf("ReplaceSchedule() = %v", err)
	}
	if res.CourseCount != 1 || res.ItemCount != 1 {
		t.Errorf("result = %+v", res)
	}
	courses, _ := db.ListCourses(ctx, "U1", term.ID)
	if len(courses) != 1 || courses[0].Teacher != nil {
		t.Errorf("courses = %+v, want one course without teacher", courses)
	}
}

func TestReplaceSchedule_RollsBackOnInvalidItem(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()
	term := seedSchedule(t, db, "U1")

	bad := ScheduleSet{
		UserID:  "U1",
		TermID:  term.ID,
		Courses: []timetable.Course{{Name: "坏数据"}},
		Items: []timetable.Item{
			{CourseName: "坏数据", DayOfWeek: 9, SectionStart: 1, SectionCount: 1, WeekStart: 1, WeekEnd: 1},
		},
	}
	if _, err := db.ReplaceSchedule(ctx, bad); err == nil {
		t.Fatal("expected constraint error for day 9")
	}

	items, err := db.ListItems(ctx, "U1", term.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Errorf("prior items = %d after failed replace, want 3 untouched", len(items))
	}
}

func TestReplaceSchedule_UpsertsTerm(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()
	term := seedSchedule(t, db, "U1")

	next := sampleSet("U1", 0)
	next.Term = &TermSpec{Name: "2026秋", StartDate: mustDate(t, "2026-09-14"), TotalWeeks: intPtr(16)}
	res, err := db.ReplaceSchedule(ctx, next)
	if err != nil {
		t.Fatalf("ReplaceSchedule() = %v", err)
	}
	if res.TermID != term.ID {
		t.Errorf("TermID = %d, want existing term %d", res.TermID, term.ID)
	}

	got, err := db.GetTerm(ctx, "U1", term.ID)
	if err != nil || got == nil {
		t.Fatalf("GetTerm() = %v, %v", got, err)
	}
	if want := mustDate(t, "2026-09-14"); !got.StartDate.Equal(want) {
		t.Errorf("StartDate = %v, want %v", got.StartDate, want)
	}
	if got.TotalWeeks == nil || *got.TotalWeeks != 16 {
		t.Errorf("TotalWeeks = %v, want 16", got.TotalWeeks)
	}
}

func TestReplaceSchedule_FailureKeepsTerm(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()
	term := seedSchedule(t, db, "U1")

	bad := ScheduleSet{
		UserID:  "U1",
		Term:    &TermSpec{Name: "2026秋", StartDate: mustDate(t, "2026-09-21")},
		Courses: []timetable.Course{{Name: "坏数据"}},
		Items: []timetable.Item{
			{CourseName: "坏数据", DayOfWeek: 9, SectionStart: 1, SectionCount: 1, WeekStart: 1, WeekEnd: 1},
		},
	}
	if _, err := db.ReplaceSchedule(ctx, bad); err == nil {
		t.Fatal("expected constraint error for day 9")
	}

	got, err := db.GetTerm(ctx, "U1", term.ID)
	if err != nil || got == nil {
		t.Fatalf("GetTerm() = %v, %v", got, err)
	}
	if !got.StartDate.Equal(term.StartDate) || got.TotalWeeks == nil || *got.TotalWeeks != 18 {
		t.Errorf("term changed by failed replace: %+v", got)
	}

	// A new term name is rolled back too.
	bad.Term = &TermSpec{Name: "2027春", StartDate: mustDate(t, "2027-03-01")}
	if _, err := db.ReplaceSchedule(ctx, bad); err == nil {
		t.Fatal("expected constraint error for day 9")
	}
	latest, err := db.LatestTermAtOrBefore(ctx, "U1", mustDate(t, "2027-06-01"))
	if err != nil || latest == nil {
		t.Fatalf("LatestTermAtOrBefore() = %v, %v", latest, err)
	}
	if latest.ID != term.ID {
		t.Errorf("latest term = %q, want the original", latest.Name)
	}
}

func TestItemsForWeek(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()
	term := seedSchedule(t, db, "U1")

	tests := []struct {
		name string
		week int
		day  int
		want int
	}{
		{"week 1 all days", 1, 0, 3},
		{"week 2 drops odd-only item", 2, 0, 2},
		{"week 8 only writing remains", 8, 0, 1},
		{"week 9 monday writing", 9, 1, 1},
		{"week 9 wednesday odd", 9, 3, 1},
		{"week 1 monday", 1, 1, 2},
		{"week 16 nothing", 16, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := db.ItemsForWeek(ctx, "U1", term.ID, tt.week, tt.day)
			if err != nil {
				t.Fatalf("ItemsForWeek() = %v", err)
			}
			if len(items) != tt.want {
				t.Errorf("ItemsForWeek(%d, %d) = %d items, want %d", tt.week, tt.day, len(items), tt.want)
			}
		})
	}

	other, err := db.ItemsForWeek(ctx, "U2", term.ID, 1, 0)
	if err != nil || len(other) != 0 {
		t.Errorf("other user's items = %d, %v", len(other), err)
	}
}

func TestCoursesByIDs(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()
	term := seedSchedule(t, db, "U1")

	items, err := db.ListItems(ctx, "U1", term.ID)
	if err != nil {
		t.Fatal(err)
	}
	ids := []int64{items[0].CourseID, 9999}
	courses, err := db.CoursesByIDs(ctx, "U1", ids)
	if err != nil {
		t.Fatalf("CoursesByIDs() = %v", err)
	}
	if len(courses) != 1 {
		t.Fatalf("CoursesByIDs() = %d courses, want 1", len(courses))
	}
	c := courses[items[0].CourseID]
	if c.Name != "网络安全攻防技术" || c.Code == nil || *c.Code != "R0902840.01" || c.Teacher == nil || *c.Teacher != "赵洋" {
		t.Errorf("course = %+v", c)
	}

	empty, err := db.CoursesByIDs(ctx, "U1", nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("CoursesByIDs(nil) = %v, %v", empty, err)
	}
}

func TestUpdateItemSections(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()
	term := seedSchedule(t, db, "U1")

	items, _ := db.ListItems(ctx, "U1", term.ID)
	id := items[0].ID

	ok, err := db.UpdateItemSections(ctx, "U2", id, 3, 2, "x")
	if err != nil || ok {
		t.Errorf("update by other user = %v, %v; want false", ok, err)
	}
	ok, err = db.UpdateItemSections(ctx, "U1", id, 3, 3, "1-7周,第3-5节,第二教学楼104")
	if err != nil || !ok {
		t.Fatalf("UpdateItemSections() = %v, %v", ok, err)
	}
	got, err := db.GetItem(ctx, "U1", id)
	if err != nil || got == nil {
		t.Fatalf("GetItem() = %v, %v", got, err)
	}
	if got.SectionStart != 3 || got.SectionCount != 3 || got.RawTimeExpr != "1-7周,第3-5节,第二教学楼104" {
		t.Errorf("item = %+v", got)
	}
	if missing, err := db.GetItem(ctx, "U1", 9999); err != nil || missing != nil {
		t.Errorf("GetItem(missing) = %v, %v", missing, err)
	}
}

func TestClearUserSchedules(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()
	term := seedSchedule(t, db, "U1")
	seedSchedule(t, db, "U2")

	if err := db.SaveImportRecord(ctx, ImportRecord{ImportID: "f", UserID: "U1", Status: ImportStatusFailAI, Error: "timeout"}); err != nil {
		t.Fatal(err)
	}
	if err := db.ClearUserSchedules(ctx, "U1"); err != nil {
		t.Fatalf("ClearUserSchedules() = %v", err)
	}

	items, _ := db.ListItems(ctx, "U1", term.ID)
	if len(items) != 0 {
		t.Errorf("items left = %d", len(items))
	}
	has, err := db.HasSuccessfulImport(ctx, "U1")
	if err != nil || has {
		t.Errorf("HasSuccessfulImport(U1) = %v, %v", has, err)
	}
	has, _ = db.HasSuccessfulImport(ctx, "U2")
	if !has {
		t.Error("U2 data should be untouched")
	}
	last, _ := db.LatestImport(ctx, "U1")
	if last == nil || last.Status != ImportStatusFailAI {
		t.Errorf("failure record should survive clear, got %+v", last)
	}
	if term, _ := db.LatestTerm(ctx, "U1"); term == nil {
		t.Error("terms should survive clear")
	}
}

func TestCountImportsByStatus(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()
	seedSchedule(t, db, "U1")
	_ = db.SaveImportRecord(ctx, ImportRecord{ImportID: "a", UserID: "U1", Status: ImportStatusFailAI})
	_ = db.SaveImportRecord(ctx, ImportRecord{ImportID: "b", UserID: "U2", Status: ImportStatusFailAI})

	counts, err := db.CountImportsByStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[ImportStatusSuccess] != 1 || counts[ImportStatusFailAI] != 2 {
		t.Errorf("counts = %v", counts)
	}
}
