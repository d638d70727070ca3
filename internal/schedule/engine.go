// Package schedule answers "which classes do I have on this date / in this
// week" over a user's imported timetable.
package schedule

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/garyellow/timetable-linebot-go/internal/storage"
	"github.com/garyellow/timetable-linebot-go/internal/timetable"
)

// Entry is one class meeting in a query result.
type Entry struct {
	ItemID       int64            `json:"itemId"`
	CourseID     int64            `json:"courseId"`
	CourseName   string           `json:"courseName"`
	CourseCode   string           `json:"courseCode,omitempty"`
	Teacher      string           `json:"teacherName,omitempty"`
	DayOfWeek    int              `json:"dayOfWeek"`
	Week         int              `json:"week"`
	SectionStart int              `json:"sectionStart"`
	SectionCount int              `json:"sectionCount"`
	Parity       timetable.Parity `json:"weekOddEven"`
	Classroom    string           `json:"classroom"`
	Campus       string           `json:"campus,omitempty"`
	Remark       string           `json:"remark,omitempty"`
	RawTimeExpr  string           `json:"rawTimeExpr"`
}

// SectionEnd returns the last section of the meeting.
func (e Entry) SectionEnd() int {
	return e.SectionStart + e.SectionCount - 1
}

// Querier is implemented by Engine and CachedEngine.
type Querier interface {
	Day(ctx context.Context, userID string, date time.Time) ([]Entry, error)
	Week(ctx context.Context, userID string, ref *time.Time, week *int) ([]Entry, error)
}

// Engine resolves terms and weeks and reads matching items from the store.
type Engine struct {
	store storage.ScheduleReader
	loc   *time.Location
	now   func() time.Time
}

// NewEngine creates an engine. loc is the zone used for "today".
func NewEngine(store storage.ScheduleReader, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{store: store, loc: loc, now: time.Now}
}

// Today returns the current date in the engine's zone.
func (e *Engine) Today() time.Time {
	return e.now().In(e.loc)
}

// Day returns the classes held on date, sorted by section. Dates outside
// every term, before a term's start or beyond its total weeks yield an empty
// result.
func (e *Engine) Day(ctx context.Context, userID string, date time.Time) ([]Entry, error) {
	term, err := e.store.LatestTermAtOrBefore(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("day query: %w", err)
	}
	if term == nil {
		return nil, nil
	}
	week := term.WeekOf(date)
	if !term.InRange(week) {
		return nil, nil
	}
	dow := isoWeekday(date)

	items, err := e.store.ItemsForWeek(ctx, userID, term.ID, week, dow)
	if err != nil {
		return nil, fmt.Errorf("day query: %w", err)
	}
	entries, err := e.join(ctx, userID, week, dedupe(items, week))
	if err != nil {
		return nil, fmt.Errorf("day query: %w", err)
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.SectionStart, b.SectionStart)
	})
	slog.DebugContext(ctx, "day query",
		"date", date.Format(time.DateOnly),
		"term_id", term.ID,
		"week", week,
		"count", len(entries))
	return entries, nil
}

// Week returns the classes of a whole teaching week sorted by day then
// section. The term is picked by ref (today when nil); week defaults to the
// week containing ref.
func (e *Engine) Week(ctx context.Context, userID string, ref *time.Time, week *int) ([]Entry, error) {
	base := e.Today()
	if ref != nil {
		base = *ref
	}
	term, err := e.store.LatestTermAtOrBefore(ctx, userID, base)
	if err != nil {
		return nil, fmt.Errorf("week query: %w", err)
	}
	if term == nil {
		return nil, nil
	}

	target := term.WeekOf(base)
	if week != nil {
		target = *week
	}
	if !term.InRange(target) {
		return nil, nil
	}

	items, err := e.store.ItemsForWeek(ctx, userID, term.ID, target, 0)
	if err != nil {
		return nil, fmt.Errorf("week query: %w", err)
	}
	entries, err := e.join(ctx, userID, target, dedupe(items, target))
	if err != nil {
		return nil, fmt.Errorf("week query: %w", err)
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(a.DayOfWeek, b.DayOfWeek); c != 0 {
			return c
		}
		return cmp.Compare(a.SectionStart, b.SectionStart)
	})
	return entries, nil
}

// dedupe keeps one item per (day, section start, section count, course,
// classroom). An item whose parity names the week's parity replaces an
// every-week item under the same key; otherwise the first one wins.
func dedupe(items []storage.ScheduleItem, week int) []storage.ScheduleItem {
	exact := timetable.ParityOf(week)
	index := make(map[string]int, len(items))
	out := make([]storage.ScheduleItem, 0, len(items))
	for _, it := range items {
		key := strconv.Itoa(it.DayOfWeek) + ":" + strconv.Itoa(it.SectionStart) + ":" +
			strconv.Itoa(it.SectionCount) + ":" + strconv.FormatInt(it.CourseID, 10) + ":" + it.Classroom
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, it)
			continue
		}
		oldExact := timetable.Parity(out[i].Parity) == exact
		newExact := timetable.Parity(it.Parity) == exact
		if newExact && !oldExact {
			out[i] = it
		}
	}
	return out
}

// join attaches course data. Items whose course vanished are dropped.
func (e *Engine) join(ctx context.Context, userID string, week int, items []storage.ScheduleItem) ([]Entry, error) {
	if len(items) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, it := range items {
		if !seen[it.CourseID] {
			seen[it.CourseID] = true
			ids = append(ids, it.CourseID)
		}
	}
	courses, err := e.store.CoursesByIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		c, ok := courses[it.CourseID]
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			ItemID:       it.ID,
			CourseID:     it.CourseID,
			CourseName:   c.Name,
			CourseCode:   deref(c.Code),
			Teacher:      deref(c.Teacher),
			DayOfWeek:    it.DayOfWeek,
			Week:         week,
			SectionStart: it.SectionStart,
			SectionCount: it.SectionCount,
			Parity:       timetable.Parity(it.Parity),
			Classroom:    it.Classroom,
			Campus:       deref(it.Campus),
			Remark:       deref(it.Remark),
			RawTimeExpr:  it.RawTimeExpr,
		})
	}
	return entries, nil
}

// isoWeekday maps Sunday to 7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
