// Package timetable turns the day-marker timetable text produced by the
// recognizer into course and schedule item candidates.
//
// The expected input looks like:
//
//	星期一：第一、二节 网络安全攻防技术 赵洋 R0902840.01 1-7周 第二教学楼104；
//	        第三、四节 专业写作基础 张培培 A6200810.02 1-9周 第二教学楼408；
//	星期二：第一、二节 马克思主义基本原理 郭英蕊 M1801230.06 7周 第二教学楼212；
//
// Parsing is pure and never performs I/O. Malformed segments are skipped and
// reported as warnings; only text without any day marker fails as a whole.
package timetable

import "fmt"

// Parity restricts an item to every week, odd weeks or even weeks of its range.
type Parity int

const (
	EveryWeek Parity = 0
	OddWeeks  Parity = 1
	EvenWeeks Parity = 2
)

// ParityOf returns the parity of a concrete week number.
func ParityOf(week int) Parity {
	if week%2 == 1 {
		return OddWeeks
	}
	return EvenWeeks
}

// Matches reports whether an item with parity p is held in the given week.
func (p Parity) Matches(week int) bool {
	return p == EveryWeek || p == ParityOf(week)
}

func (p Parity) String() string {
	switch p {
	case OddWeeks:
		return "单周"
	case EvenWeeks:
		return "双周"
	default:
		return "每周"
	}
}

// WeekRange is an inclusive range of teaching weeks.
type WeekRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (w WeekRange) String() string {
	if w.Start == w.End {
		return fmt.Sprintf("%d周", w.Start)
	}
	return fmt.Sprintf("%d-%d周", w.Start, w.End)
}

// WeekRoom binds a week range to the classroom token that followed it.
// Classroom may list several rooms joined by "、".
type WeekRoom struct {
	Weeks     WeekRange `json:"weeks"`
	Classroom string    `json:"classroom"`
}

// Course is a course candidate. Code and Teacher are empty when unknown.
type Course struct {
	Name    string `json:"courseName"`
	Code    string `json:"courseCode,omitempty"`
	Teacher string `json:"teacherName,omitempty"`
}

// Key returns the registry key of the course.
func (c Course) Key() string { return CourseKey(c.Name, c.Teacher) }

// CourseKey identifies a course within one import by name and teacher.
func CourseKey(name, teacher string) string {
	return name + "|" + teacher
}

// Item is a schedule item candidate: one teaching slot on one weekday
// repeated over a range of weeks.
//
// Zero DayOfWeek or SectionStart marks the field as missing. Zero week
// bounds are filled in by Normalize.
type Item struct {
	CourseName   string `json:"courseName"`
	Teacher      string `json:"teacherName,omitempty"`
	DayOfWeek    int    `json:"dayOfWeek"`
	SectionStart int    `json:"sectionStart"`
	SectionCount int    `json:"sectionCount"`
	WeekStart    int    `json:"weekStart"`
	WeekEnd      int    `json:"weekEnd"`
	Parity       Parity `json:"weekOddEven"`
	Classroom    string `json:"classroom"`
	Campus       string `json:"campus,omitempty"`
	Remark       string `json:"remark,omitempty"`
	RawTimeExpr  string `json:"rawTimeExpr"`
}

// SectionEnd returns the last section covered by the item.
func (it Item) SectionEnd() int {
	return it.SectionStart + it.SectionCount - 1
}

// CourseKey returns the registry key of the item's course.
func (it Item) CourseKey() string {
	return CourseKey(it.CourseName, it.Teacher)
}

// Result is the outcome of parsing one timetable text.
type Result struct {
	Courses  []Course        `json:"courses"`
	Items    []Item          `json:"items"`
	Warnings []*SegmentError `json:"-"`
}
