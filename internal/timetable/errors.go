package timetable

import (
	"errors"
	"fmt"
)

// ErrNoDayMarkers is returned when the text has no "星期X：" marker at all.
var ErrNoDayMarkers = errors.New("timetable: no day markers found")

// Segment warning reasons.
const (
	ReasonNoSectionRange = "missing section range"
	ReasonTooFewFields   = "too few fields"
	ReasonUnknownNumeral = "unknown numeral"
	ReasonBadWeekRange   = "bad week range"
	ReasonUnknownDay     = "unknown day"
)

// SegmentError describes a problem with one course segment. Skipped segments
// produce no items; the others only lost precision.
type SegmentError struct {
	Day     int
	Segment string
	Reason  string
	Skipped bool
}

func (e *SegmentError) Error() string {
	if e.Skipped {
		return fmt.Sprintf("day %d: segment skipped (%s): %q", e.Day, e.Reason, e.Segment)
	}
	return fmt.Sprintf("day %d: %s: %q", e.Day, e.Reason, e.Segment)
}
