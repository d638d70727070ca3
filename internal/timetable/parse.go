package timetable

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Parse parses a timetable text. See ParseContext.
func Parse(text string) (Result, error) {
	return ParseContext(context.Background(), text)
}

// ParseContext splits text into day blocks and course segments, parses the
// segments concurrently and assembles them in source order. The returned
// items are raw candidates; pass them through Normalize before storing.
//
// Only ErrNoDayMarkers and context cancellation are returned as errors.
// Segment problems are collected in Result.Warnings.
func ParseContext(ctx context.Context, text string) (Result, error) {
	blocks, dayWarnings, err := SegmentDays(text)
	if err != nil {
		return Result{}, err
	}

	type job struct {
		day  int
		text string
	}
	var jobs []job
	for _, b := range blocks {
		for _, s := range SplitSegments(b.Text) {
			jobs = append(jobs, job{day: b.Day, text: s})
		}
	}

	segs := make([]Segment, len(jobs))
	errs := make([]error, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			segs[i], errs[i] = ParseSegment(j.text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	reg := NewRegistry()
	res := Result{Warnings: dayWarnings}
	for i, j := range jobs {
		for _, w := range segs[i].Warnings {
			res.Warnings = append(res.Warnings, &SegmentError{Day: j.day, Segment: j.text, Reason: w})
		}
		if errs[i] != nil {
			var se *SegmentError
			if errors.As(errs[i], &se) {
				se.Day = j.day
				res.Warnings = append(res.Warnings, se)
			}
			continue
		}
		res.Items = append(res.Items, Assemble(j.day, segs[i], reg)...)
	}
	res.Courses = reg.Courses()
	return res, nil
}
