package timetable

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	sectionRe   = regexp.MustCompile(`^第([^节]+)节\s+(.+)$`)
	weekRe      = regexp.MustCompile(`(\d+(?:-\d+)?)周`)
	weekStripRe = regexp.MustCompile(`(\d+(?:-\d+)?)周[、,，]?`)
	bareWeekRe  = regexp.MustCompile(`^\d+(?:-\d+)?周$`)
	roomDigitRe = regexp.MustCompile(`\d{3,}`)
)

// Segment is the parsed form of one course segment.
type Segment struct {
	SectionStart int
	SectionCount int
	Code         string
	CourseName   string
	Teacher      string
	// Classroom is the fallback room token, used when WeekRooms is empty.
	Classroom  string
	WeekRanges []WeekRange
	WeekRooms  []WeekRoom
	// Warnings holds non-fatal reasons, e.g. unknown numerals.
	Warnings []string
}

// ParseSegment parses a single course segment such as
// "第一、二节 测试课 张三 T000001 1-7周 教一楼101". A *SegmentError with
// Skipped set is returned when the segment cannot be used.
func ParseSegment(text string) (Segment, error) {
	m := sectionRe.FindStringSubmatch(text)
	if m == nil {
		return Segment{}, &SegmentError{Segment: text, Reason: ReasonNoSectionRange, Skipped: true}
	}

	var seg Segment
	start, count, unknown := parseSections(strings.TrimSpace(m[1]))
	seg.SectionStart, seg.SectionCount = start, count
	for _, u := range unknown {
		seg.Warnings = append(seg.Warnings, ReasonUnknownNumeral+" "+u)
	}

	var rest string
	seg.Code, rest = extractCode(strings.TrimSpace(m[2]))

	withWeeks := rest
	for _, wm := range weekRe.FindAllStringSubmatch(withWeeks, -1) {
		wr, ok := parseWeekRange(wm[1])
		if !ok {
			seg.Warnings = append(seg.Warnings, ReasonBadWeekRange+" "+wm[0])
			continue
		}
		seg.WeekRanges = append(seg.WeekRanges, wr)
	}
	rest = collapseSpaces(weekStripRe.ReplaceAllString(withWeeks, " "))

	western := westernName(rest)
	if western != "" {
		rest = collapseSpaces(strings.ReplaceAll(rest, western, " "))
	}

	tokens := strings.Fields(rest)
	if len(tokens) < 2 {
		return Segment{}, &SegmentError{Segment: text, Reason: ReasonTooFewFields, Skipped: true}
	}

	roomIdx := classroomIndex(tokens)
	seg.Classroom = tokens[roomIdx]

	teacherIdx := -1
	if western != "" {
		seg.Teacher = western
	} else if idx, ok := PickTeacher(tokens, roomIdx); ok {
		teacherIdx = idx
		seg.Teacher = tokens[idx]
	}

	name := make([]string, 0, len(tokens))
	for i, t := range tokens {
		if i == roomIdx || i == teacherIdx {
			continue
		}
		name = append(name, t)
	}
	seg.CourseName = strings.Join(name, " ")
	seg.WeekRooms = pairWeekRooms(withWeeks)
	return seg, nil
}

// IsClassroomToken reports whether a token looks like a room: it mentions a
// building (楼) or classroom (教室), or carries a run of three digits.
func IsClassroomToken(t string) bool {
	return strings.Contains(t, "楼") || strings.Contains(t, "教室") || roomDigitRe.MatchString(t)
}

// classroomIndex returns the right-most classroom-shaped token, or the last
// token when none qualifies.
func classroomIndex(tokens []string) int {
	for i := len(tokens) - 1; i >= 0; i-- {
		if IsClassroomToken(tokens[i]) {
			return i
		}
	}
	return len(tokens) - 1
}

// pairWeekRooms binds every week expression to the first classroom token that
// follows it. Reaching another bare week expression first leaves the week
// unbound.
func pairWeekRooms(text string) []WeekRoom {
	var pairs []WeekRoom
	for _, loc := range weekRe.FindAllStringSubmatchIndex(text, -1) {
		wr, ok := parseWeekRange(text[loc[2]:loc[3]])
		if !ok {
			continue
		}
		for _, tok := range strings.Fields(text[loc[1]:]) {
			if IsClassroomToken(tok) {
				pairs = append(pairs, WeekRoom{Weeks: wr, Classroom: tok})
				break
			}
			if bareWeekRe.MatchString(tok) {
				break
			}
		}
	}
	return pairs
}

func parseWeekRange(expr string) (WeekRange, bool) {
	lo, hi, found := strings.Cut(expr, "-")
	start, err := strconv.Atoi(lo)
	if err != nil {
		return WeekRange{}, false
	}
	if !found {
		return WeekRange{Start: start, End: start}, true
	}
	end, err := strconv.Atoi(hi)
	if err != nil {
		return WeekRange{}, false
	}
	return WeekRange{Start: start, End: end}, true
}
