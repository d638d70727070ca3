package schedule

import (
	"strings"
	"time"
	"unicode"
)

// Period is a coarse part of the day named in a question.
type Period int

const (
	AllDay Period = iota
	Morning
	Afternoon
	Evening
)

func (p Period) String() string {
	switch p {
	case Morning:
		return "上午"
	case Afternoon:
		return "下午"
	case Evening:
		return "晚上"
	default:
		return "全天"
	}
}

// Sections returns the inclusive section span of the period.
func (p Period) Sections() (first, last int) {
	switch p {
	case Morning:
		return 1, 4
	case Afternoon:
		return 5, 8
	case Evening:
		return 9, 12
	default:
		return 1, 1 << 30
	}
}

type phrase struct {
	words []string
	value int
}

// Checked in order; the farther day offsets come first.
var dayOffsets = []phrase{
	{[]string{"前天"}, -2},
	{[]string{"昨天"}, -1},
	{[]string{"后天"}, 2},
	{[]string{"明天", "翌日"}, 1},
	{[]string{"今天", "今日", "当日"}, 0},
}

var weekOffsets = []phrase{
	{[]string{"下下周"}, 2},
	{[]string{"下周", "下星期", "下礼拜"}, 1},
	{[]string{"上周", "上星期", "上礼拜"}, -1},
	{[]string{"这周", "本周", "这星期", "本星期"}, 0},
}

var weekdays = []phrase{
	{[]string{"周一", "星期一", "礼拜一"}, 1},
	{[]string{"周二", "星期二", "礼拜二"}, 2},
	{[]string{"周三", "星期三", "礼拜三"}, 3},
	{[]string{"周四", "星期四", "礼拜四"}, 4},
	{[]string{"周五", "星期五", "礼拜五"}, 5},
	{[]string{"周六", "星期六", "礼拜六"}, 6},
	{[]string{"周日", "星期日", "星期天", "礼拜日", "礼拜天"}, 7},
}

var periods = []phrase{
	{[]string{"上午", "早上", "早晨"}, int(Morning)},
	{[]string{"下午", "中午"}, int(Afternoon)},
	{[]string{"晚上", "晚间", "夜里", "夜晚"}, int(Evening)},
}

func match(q string, table []phrase) (int, bool) {
	for _, p := range table {
		for _, w := range p.words {
			if strings.Contains(q, w) {
				return p.value, true
			}
		}
	}
	return 0, false
}

func compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// ResolveDate turns relative date words in question into a date relative to
// today: 前天/昨天/今天/明天/后天, then an optional weekday which is placed in
// the week of the resolved day shifted by 上周/下周/下下周. Without any
// recognized word today is returned.
func ResolveDate(question string, today time.Time) time.Time {
	q := compact(question)
	date := today
	if off, ok := match(q, dayOffsets); ok {
		date = date.AddDate(0, 0, off)
	}

	dow, ok := match(q, weekdays)
	if !ok {
		return date
	}
	weekOff, _ := match(q, weekOffsets)
	monday := date.AddDate(0, 0, -(isoWeekday(date) - 1))
	return monday.AddDate(0, 0, weekOff*7+dow-1)
}

// ResolvePeriod returns the part of day named in question, or AllDay.
func ResolvePeriod(question string) Period {
	if p, ok := match(compact(question), periods); ok {
		return Period(p)
	}
	return AllDay
}

// FilterByPeriod keeps entries whose section span overlaps the period.
func FilterByPeriod(entries []Entry, p Period) []Entry {
	if p == AllDay || len(entries) == 0 {
		return entries
	}
	first, last := p.Sections()
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.SectionEnd() >= first && e.SectionStart <= last {
			out = append(out, e)
		}
	}
	return out
}
