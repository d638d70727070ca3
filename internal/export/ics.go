package export

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/garyellow/timetable-linebot-go/internal/config"
	"github.com/garyellow/timetable-linebot-go/internal/storage"
	"github.com/garyellow/timetable-linebot-go/internal/timetable"
)

// floatingLayout is an iCalendar local time without zone.
const floatingLayout = "20060102T150405"

// BuildICS expands every item into one event per teaching week it is held,
// honoring parity and the term length. Times are floating local times taken
// from sections; items whose sections are missing from the table are
// skipped.
func BuildICS(tt *Timetable, sections *config.SectionTable, loc *time.Location, now time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//timetable-linebot-go//timetable//CN")
	cal.SetXWRCalName(tt.Term.Name)
	if loc != nil {
		cal.SetXWRTimezone(loc.String())
	}

	for _, it := range tt.Items {
		begin, end, ok := sections.Span(it.SectionStart, it.SectionCount)
		if !ok {
			continue
		}
		course := tt.Courses[it.CourseID]
		parity := timetable.Parity(it.Parity)

		for week := it.WeekStart; week <= it.WeekEnd; week++ {
			if !tt.Term.InRange(week) || !parity.Matches(week) {
				continue
			}
			day := dateOf(tt.Term, week, it.DayOfWeek)

			event := cal.AddEvent(eventUID(tt.UserID, it.ID, week))
			event.SetDtStampTime(now.UTC())
			event.SetProperty(ics.ComponentPropertyDtStart, day.Add(begin).Format(floatingLayout))
			event.SetProperty(ics.ComponentPropertyDtEnd, day.Add(end).Format(floatingLayout))
			event.SetSummary(course.Name)
			if it.Classroom != "" {
				event.SetLocation(it.Classroom)
			}
			event.SetDescription(describe(course.Teacher, course.Code, week, it))
		}
	}
	return cal.Serialize()
}

// eventUID is stable across exports so calendar clients update events in
// place.
func eventUID(userID string, itemID int64, week int) string {
	name := fmt.Sprintf("timetable:%s:%d:%d", userID, itemID, week)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String() + "@timetable"
}

func describe(teacher, code *string, week int, it storage.ScheduleItem) string {
	parts := []string{fmt.Sprintf("第%d周 %s", week, timetable.FormatSections(it.SectionStart, it.SectionCount))}
	if t := deref(teacher); t != "" {
		parts = append(parts, "教师："+t)
	}
	if c := deref(code); c != "" {
		parts = append(parts, "代码："+c)
	}
	if r := deref(it.Remark); r != "" {
		parts = append(parts, "备注："+r)
	}
	return strings.Join(parts, "\n")
}
