package timetable

import (
	"fmt"
	"slices"
)

// Normalize validates and canonicalizes item candidates. It is pure and
// idempotent.
//
// Items without a weekday or section start are dropped. Section counts below
// one become one. Week bounds are completed from each other (defaulting to
// week 1), put in order and aligned to the item's parity. Items that share
// weekday, course, room, teacher, weeks and parity are merged when their
// sections form one contiguous run.
func Normalize(items []Item) []Item {
	valid := make([]Item, 0, len(items))
	for _, it := range items {
		if it.DayOfWeek < 1 || it.DayOfWeek > 7 || it.SectionStart < 1 {
			continue
		}
		if it.SectionCount <= 0 {
			it.SectionCount = 1
		}
		it.WeekStart, it.WeekEnd = fixWeeks(it.WeekStart, it.WeekEnd, it.Parity)
		it.RawTimeExpr = it.Describe()
		valid = append(valid, it)
	}
	return mergeRuns(valid)
}

func fixWeeks(start, end int, parity Parity) (int, int) {
	switch {
	case start <= 0 && end <= 0:
		start, end = 1, 1
	case start <= 0:
		start = end
	case end <= 0:
		end = start
	}
	if start > end {
		start, end = end, start
	}

	switch parity {
	case OddWeeks:
		if start%2 == 0 {
			start++
		}
		if end%2 == 0 {
			end--
		}
	case EvenWeeks:
		if start%2 == 1 {
			start++
		}
		if end%2 == 1 {
			end--
		}
	default:
		return start, end
	}
	if start > end {
		end = start
	}
	return start, end
}

func groupKey(it Item) string {
	return fmt.Sprintf("%d|%s|%s|%s|%d-%d-%d",
		it.DayOfWeek, it.CourseName, it.Classroom, it.Teacher, it.WeekStart, it.WeekEnd, it.Parity)
}

func mergeRuns(items []Item) []Item {
	var order []string
	groups := make(map[string][]Item)
	for _, it := range items {
		k := groupKey(it)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], it)
	}

	out := make([]Item, 0, len(items))
	for _, k := range order {
		g := groups[k]
		if len(g) == 1 {
			out = append(out, g[0])
			continue
		}

		covered := make(map[int]struct{})
		for _, it := range g {
			for s := it.SectionStart; s <= it.SectionEnd(); s++ {
				covered[s] = struct{}{}
			}
		}
		secs := make([]int, 0, len(covered))
		for s := range covered {
			secs = append(secs, s)
		}
		slices.Sort(secs)
		lo, hi := secs[0], secs[len(secs)-1]
		if len(secs) != hi-lo+1 {
			out = append(out, g...)
			continue
		}

		merged := g[0]
		merged.SectionStart = lo
		merged.SectionCount = hi - lo + 1
		merged.RawTimeExpr = merged.Describe()
		out = append(out, merged)
	}
	return out
}
