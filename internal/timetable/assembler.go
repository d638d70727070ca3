package timetable

import "strings"

// Registry collects the courses seen during one import, keyed by name and
// teacher, in first-seen order.
type Registry struct {
	keys    []string
	courses map[string]*Course
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{courses: make(map[string]*Course)}
}

// Observe records a course sighting. The first sighting wins; later ones only
// fill in a missing code or teacher.
func (r *Registry) Observe(c Course) {
	key := c.Key()
	existing, ok := r.courses[key]
	if !ok {
		cp := c
		r.courses[key] = &cp
		r.keys = append(r.keys, key)
		return
	}
	if existing.Code == "" && c.Code != "" {
		existing.Code = c.Code
	}
	if existing.Teacher == "" && c.Teacher != "" {
		existing.Teacher = c.Teacher
	}
}

// Lookup returns the course registered under key.
func (r *Registry) Lookup(key string) (Course, bool) {
	c, ok := r.courses[key]
	if !ok {
		return Course{}, false
	}
	return *c, true
}

// Len returns the number of distinct courses.
func (r *Registry) Len() int { return len(r.keys) }

// Courses returns the registered courses in first-seen order.
func (r *Registry) Courses() []Course {
	out := make([]Course, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, *r.courses[k])
	}
	return out
}

// Assemble registers the segment's course and expands the segment into item
// candidates for the given weekday.
//
// Explicit week/room bindings produce one item per binding and room. Without
// them every fallback room is combined with every week range, defaulting to
// week 1 only. Parity is always EveryWeek here.
func Assemble(day int, seg Segment, reg *Registry) []Item {
	reg.Observe(Course{Name: seg.CourseName, Code: seg.Code, Teacher: seg.Teacher})

	newItem := func(weeks WeekRange, room string) Item {
		return Item{
			CourseName:   seg.CourseName,
			Teacher:      seg.Teacher,
			DayOfWeek:    day,
			SectionStart: seg.SectionStart,
			SectionCount: seg.SectionCount,
			WeekStart:    weeks.Start,
			WeekEnd:      weeks.End,
			Parity:       EveryWeek,
			Classroom:    room,
			RawTimeExpr:  FormatRawTimeExpr(weeks.Start, weeks.End, seg.SectionStart, seg.SectionCount, room),
		}
	}

	var items []Item
	if len(seg.WeekRooms) > 0 {
		for _, pair := range seg.WeekRooms {
			for _, room := range splitRooms(pair.Classroom) {
				items = append(items, newItem(pair.Weeks, room))
			}
		}
		return items
	}

	ranges := seg.WeekRanges
	if len(ranges) == 0 {
		ranges = []WeekRange{{Start: 1, End: 1}}
	}
	for _, room := range splitRooms(seg.Classroom) {
		for _, wr := range ranges {
			items = append(items, newItem(wr, room))
		}
	}
	return items
}

func splitRooms(token string) []string {
	var rooms []string
	for _, r := range strings.Split(token, "、") {
		if r = strings.TrimSpace(r); r != "" {
			rooms = append(rooms, r)
		}
	}
	return rooms
}
