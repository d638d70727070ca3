package timetable

import (
	"fmt"
	"strings"
)

// UnknownClassroom is shown when an item has no room.
const UnknownClassroom = "教室未知"

// FormatSections renders a section run as "第3节" or "第1-2节".
func FormatSections(start, count int) string {
	if count <= 1 {
		return fmt.Sprintf("第%d节", start)
	}
	return fmt.Sprintf("第%d-%d节", start, start+count-1)
}

// FormatRawTimeExpr builds the display string stored with an item, e.g.
// "1-7周,第1-2节,教一楼101".
func FormatRawTimeExpr(weekStart, weekEnd, sectionStart, sectionCount int, classroom string) string {
	weeks := WeekRange{Start: weekStart, End: weekEnd}.String()
	if strings.TrimSpace(classroom) == "" {
		classroom = UnknownClassroom
	}
	return weeks + "," + FormatSections(sectionStart, sectionCount) + "," + classroom
}

// Describe rebuilds the display string of the item from its fields.
func (it Item) Describe() string {
	return FormatRawTimeExpr(it.WeekStart, it.WeekEnd, it.SectionStart, it.SectionCount, it.Classroom)
}
