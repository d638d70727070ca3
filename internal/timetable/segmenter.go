package timetable

import (
	"regexp"
	"strings"
)

var (
	dayMarkerRe  = regexp.MustCompile(`星期(.)\s*[:：]`)
	segmentSepRe = regexp.MustCompile(`[；;]`)
	bareMarkerRe = regexp.MustCompile(`^星期[一二三四五六日天]\s*[:：]?$`)
)

var dayNumbers = map[string]int{
	"一": 1,
	"二": 2,
	"三": 3,
	"四": 4,
	"五": 5,
	"六": 6,
	"日": 7,
	"天": 7,
}

// DayBlock is the text between one day marker and the next.
type DayBlock struct {
	Day  int
	Text string
}

// SegmentDays normalizes text and splits it into one block per day marker,
// in source order. A marker with an unknown day character drops its block
// and is reported as a skipped SegmentError. It returns ErrNoDayMarkers
// when no marker is present.
func SegmentDays(text string) ([]DayBlock, []*SegmentError, error) {
	norm := NormalizeText(text)
	locs := dayMarkerRe.FindAllStringSubmatchIndex(norm, -1)
	if len(locs) == 0 {
		return nil, nil, ErrNoDayMarkers
	}

	blocks := make([]DayBlock, 0, len(locs))
	var warnings []*SegmentError
	for i, loc := range locs {
		end := len(norm)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(norm[loc[1]:end])
		day, ok := dayNumbers[norm[loc[2]:loc[3]]]
		if !ok {
			warnings = append(warnings, &SegmentError{
				Segment: norm[loc[0]:loc[1]] + body,
				Reason:  ReasonUnknownDay,
				Skipped: true,
			})
			continue
		}
		blocks = append(blocks, DayBlock{Day: day, Text: body})
	}
	return blocks, warnings, nil
}

// SplitSegments splits a day block into course segments. Empty pieces and
// leftover bare day markers are dropped.
func SplitSegments(block string) []string {
	parts := segmentSepRe.Split(block, -1)
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || bareMarkerRe.MatchString(p) {
			continue
		}
		segs = append(segs, p)
	}
	return segs
}
