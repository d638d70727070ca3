// Package export renders a user's current term as an iCalendar feed or an
// Excel workbook with one week grid per sheet.
package export

import (
	"context"
	"time"

	"github.com/garyellow/timetable-linebot-go/internal/config"
	domerrors "github.com/garyellow/timetable-linebot-go/internal/errors"
	"github.com/garyellow/timetable-linebot-go/internal/storage"
)

// Store reads a whole term. storage.DB implements it.
type Store interface {
	LatestTermAtOrBefore(ctx context.Context, userID string, date time.Time) (*storage.Term, error)
	LatestTerm(ctx context.Context, userID string) (*storage.Term, error)
	ListItems(ctx context.Context, userID string, termID int64) ([]storage.ScheduleItem, error)
	ListCourses(ctx context.Context, userID string, termID int64) ([]storage.Course, error)
}

// Recorder observes export durations. metrics.Metrics implements it.
type Recorder interface {
	RecordQuery(kind string, d time.Duration)
}

// Timetable is one term with its items and their courses.
type Timetable struct {
	UserID  string
	Term    *storage.Term
	Items   []storage.ScheduleItem
	Courses map[int64]storage.Course
}

// Service builds exports for the term covering today.
type Service struct {
	store    Store
	sections *config.SectionTable
	loc      *time.Location
	recorder Recorder
	now      func() time.Time
}

// NewService creates an export service. sections defaults to the built-in
// table and loc to the local zone.
func NewService(store Store, sections *config.SectionTable, loc *time.Location, recorder Recorder) *Service {
	if sections == nil {
		sections = config.DefaultSectionTable()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: store, sections: sections, loc: loc, recorder: recorder, now: time.Now}
}

// ICS returns the calendar feed and a file name.
func (s *Service) ICS(ctx context.Context, userID string) ([]byte, string, error) {
	start := time.Now()
	tt, err := s.load(ctx, userID, "ics")
	if err != nil {
		return nil, "", err
	}
	out := BuildICS(tt, s.sections, s.loc, s.now())
	s.observe("export_ics", start)
	return []byte(out), fileName(tt.Term, ".ics"), nil
}

// XLSX returns the workbook and a file name.
func (s *Service) XLSX(ctx context.Context, userID string) ([]byte, string, error) {
	start := time.Now()
	tt, err := s.load(ctx, userID, "xlsx")
	if err != nil {
		return nil, "", err
	}
	data, err := BuildXLSX(tt, s.sections)
	if err != nil {
		return nil, "", domerrors.NewWrapper("export", "xlsx").Wrap(err, "生成表格失败，请稍后重试")
	}
	s.observe("export_xlsx", start)
	return data, fileName(tt.Term, ".xlsx"), nil
}

func (s *Service) load(ctx context.Context, userID, op string) (*Timetable, error) {
	wrap := domerrors.NewWrapper("export", op)
	term, err := s.store.LatestTermAtOrBefore(ctx, userID, s.now().In(s.loc))
	if err == nil && term == nil {
		term, err = s.store.LatestTerm(ctx, userID)
	}
	if err != nil {
		return nil, wrap.Wrap(err, "读取学期信息失败，请稍后重试")
	}
	if term == nil {
		return nil, wrap.Wrap(domerrors.ErrNoTerm, "还没有导入课表，请先上传课表截图")
	}

	items, err := s.store.ListItems(ctx, userID, term.ID)
	if err != nil {
		return nil, wrap.Wrap(err, "读取课表失败，请稍后重试")
	}
	courses, err := s.store.ListCourses(ctx, userID, term.ID)
	if err != nil {
		return nil, wrap.Wrap(err, "读取课表失败，请稍后重试")
	}
	byID := make(map[int64]storage.Course, len(courses))
	for _, c := range courses {
		byID[c.ID] = c
	}
	return &Timetable{UserID: userID, Term: term, Items: items, Courses: byID}, nil
}

func (s *Service) observe(kind string, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordQuery(kind, time.Since(start))
	}
}

func fileName(term *storage.Term, ext string) string {
	return "timetable-" + term.StartDate.Format("20060102") + ext
}

// dateOf returns the calendar date of the given weekday in a teaching week.
// Week 1 is the seven days starting at the term's start date.
func dateOf(term *storage.Term, week, dayOfWeek int) time.Time {
	y, m, d := term.StartDate.Date()
	base := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, (week-1)*7)
	offset := (dayOfWeek - isoWeekday(base) + 7) % 7
	return base.AddDate(0, 0, offset)
}

func isoWeekday(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}

// lastWeek is the final week rendered: the term length when known, the
// latest item week otherwise.
func lastWeek(tt *Timetable) int {
	if tt.Term.TotalWeeks != nil {
		return *tt.Term.TotalWeeks
	}
	last := 1
	for _, it := range tt.Items {
		last = max(last, it.WeekEnd)
	}
	return last
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
