package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/garyellow/timetable-linebot-go/internal/config"
	domerrors "github.com/garyellow/timetable-linebot-go/internal/errors"
	"github.com/garyellow/timetable-linebot-go/internal/storage"
)

type fakeStore struct {
	current *storage.Term
	latest  *storage.Term
	items   []storage.ScheduleItem
	courses []storage.Course
}

func (f *fakeStore) LatestTermAtOrBefore(context.Context, string, time.Time) (*storage.Term, error) {
	return f.current, nil
}

func (f *fakeStore) LatestTerm(context.Context, string) (*storage.Term, error) {
	return f.latest, nil
}

func (f *fakeStore) ListItems(context.Context, string, int64) ([]storage.ScheduleItem, error) {
	return f.items, nil
}

func (f *fakeStore) ListCourses(context.Context, string, int64) ([]storage.Course, error) {
	return f.courses, nil
}

func ptr[T any](v T) *T { return &v }

func sampleStore() *fakeStore {
	term := &storage.Term{
		ID:         1,
		UserID:     "U1",
		Name:       "2026秋",
		StartDate:  time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		TotalWeeks: ptr(4),
	}
	return &fakeStore{
		current: term,
		items: []storage.ScheduleItem{
			{ID: 10, CourseID: 1, DayOfWeek: 1, SectionStart: 1, SectionCount: 2, WeekStart: 1, WeekEnd: 16, Classroom: "教一楼101"},
			{ID: 11, CourseID: 2, DayOfWeek: 3, SectionStart: 5, SectionCount: 2, WeekStart: 1, WeekEnd: 5, Parity: 1, Classroom: "外语楼202"},
			{ID: 12, CourseID: 2, DayOfWeek: 5, SectionStart: 13, SectionCount: 1, WeekStart: 1, WeekEnd: 4},
		},
		courses: []storage.Course{
			{ID: 1, Name: "高等数学", Code: ptr("M1001"), Teacher: ptr("张三")},
			{ID: 2, Name: "大学英语", Teacher: ptr("李四")},
		},
	}
}

func newTestService(store Store) *Service {
	s := NewService(store, config.DefaultSectionTable(), time.UTC, nil)
	s.now = func() time.Time { return time.Date(2026, 9, 20, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestICS(t *testing.T) {
	t.Parallel()
	s := newTestService(sampleStore())

	data, name, err := s.ICS(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "timetable-20260907.ics", name)

	cal, err := ics.ParseCalendar(bytes.NewReader(data))
	require.NoError(t, err)
	events := cal.Events()
	// 4 weekly Monday classes, odd weeks 1 and 3 on Wednesday, section 13
	// has no clock time.
	require.Len(t, events, 6)

	prop := func(e *ics.VEvent, p ics.ComponentProperty) string {
		v := e.GetProperty(p)
		require.NotNil(t, v, "missing %s", p)
		return v.Value
	}

	first := events[0]
	assert.Equal(t, "20260907T083000", prop(first, ics.ComponentPropertyDtStart))
	assert.Equal(t, "20260907T100500", prop(first, ics.ComponentPropertyDtEnd))
	assert.Equal(t, "高等数学", prop(first, ics.ComponentPropertySummary))
	assert.Equal(t, "教一楼101", prop(first, ics.ComponentPropertyLocation))

	var wednesdays []string
	for _, e := range events {
		if prop(e, ics.ComponentPropertySummary) == "大学英语" {
			wednesdays = append(wednesdays, prop(e, ics.ComponentPropertyDtStart))
		}
	}
	assert.Equal(t, []string{"20260909T143000", "20260923T143000"}, wednesdays)
}

func TestICS_StableUIDs(t *testing.T) {
	t.Parallel()
	s := newTestService(sampleStore())

	a, _, err := s.ICS(context.Background(), "U1")
	require.NoError(t, err)
	b, _, err := s.ICS(context.Background(), "U1")
	require.NoError(t, err)

	uids := func(data []byte) []string {
		cal, err := ics.ParseCalendar(bytes.NewReader(data))
		require.NoError(t, err)
		var out []string
		for _, e := range cal.Events() {
			out = append(out, e.Id())
		}
		return out
	}
	assert.Equal(t, uids(a), uids(b))
	assert.NotEqual(t, eventUID("U1", 10, 1), eventUID("U1", 10, 2))
	assert.True(t, strings.HasSuffix(eventUID("U1", 10, 1), "@timetable"))
}

func TestXLSX(t *testing.T) {
	t.Parallel()
	s := newTestService(sampleStore())

	data, name, err := s.XLSX(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "timetable-20260907.xlsx", name)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"第1周", "第2周", "第3周", "第4周"}, f.GetSheetList())

	cell := func(sheet, axis string) string {
		v, err := f.GetCellValue(sheet, axis)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "节次", cell("第1周", "A1"))
	assert.Equal(t, "周一 09-07", cell("第1周", "B1"))
	assert.Equal(t, "周三 09-16", cell("第2周", "D1"))
	assert.Equal(t, "第1节\n08:30-09:15", cell("第1周", "A2"))
	assert.Equal(t, "高等数学 @教一楼101", cell("第1周", "B2"))
	assert.Equal(t, "高等数学 @教一楼101", cell("第1周", "B3"))
	assert.Equal(t, "大学英语 @外语楼202", cell("第1周", "D6"))
	assert.Empty(t, cell("第2周", "D6"))
	assert.Equal(t, "大学英语", cell("第4周", "F14"))
}

func TestLoad_FallsBackToLatestTerm(t *testing.T) {
	t.Parallel()
	store := sampleStore()
	store.latest, store.current = store.current, nil
	s := newTestService(store)

	tt, err := s.load(context.Background(), "U1", "ics")
	require.NoError(t, err)
	assert.Equal(t, "2026秋", tt.Term.Name)
	assert.Len(t, tt.Courses, 2)
}

func TestExport_NoTerm(t *testing.T) {
	t.Parallel()
	s := newTestService(&fakeStore{})

	_, _, err := s.ICS(context.Background(), "U1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domerrors.ErrNoTerm))
	assert.Equal(t, "还没有导入课表，请先上传课表截图", domerrors.GetUserMessage(err))

	_, _, err = s.XLSX(context.Background(), "U1")
	assert.ErrorIs(t, err, domerrors.ErrNoTerm)
}

func TestDateOf(t *testing.T) {
	t.Parallel()
	// Term starting on a Wednesday: week 1 spans Wed..Tue.
	term := &storage.Term{StartDate: time.Date(2026, 9, 9, 0, 0, 0, 0, time.UTC)}
	tests := []struct {
		week, day int
		want      string
	}{
		{1, 3, "2026-09-09"},
		{1, 1, "2026-09-14"},
		{2, 7, "2026-09-20"},
		{2, 3, "2026-09-16"},
	}
	for _, tt := range tests {
		if got := dateOf(term, tt.week, tt.day).Format(time.DateOnly); got != tt.want {
			t.Errorf("dateOf(%d, %d) = %s, want %s", tt.week, tt.day, got, tt.want)
		}
	}
}
