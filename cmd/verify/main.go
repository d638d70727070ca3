// Package main checks a recognized timetable text offline: it parses the
// text, normalizes the items and checks every section against the section
// table the exports use.
//
//	go run ./cmd/verify -sections sections.yaml timetable.txt
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/garyellow/timetable-linebot-go/internal/config"
	"github.com/garyellow/timetable-linebot-go/internal/timetable"
)

var sectionsFlag = flag.String("sections", "", "Section time table (YAML); empty uses the default table")

// Verification results
type verifyResult struct {
	name    string
	passed  bool
	message string
}

func main() {
	flag.Parse()

	text, err := readInput(flag.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to read input: %v\n", err)
		os.Exit(1)
	}
	sections, err := config.LoadSectionTable(*sectionsFlag)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load section table: %v\n", err)
		os.Exit(1)
	}

	items, results := verify(text, sections)

	fmt.Println("Parsed items:")
	for _, it := range items {
		fmt.Printf("  %s %s %s\n", it.CourseName, it.RawTimeExpr, it.Teacher)
	}

	fmt.Println("\nVerification results:")
	failed := 0
	for _, r := range results {
		status := "PASS"
		if !r.passed {
			status = "FAIL"
			failed++
		}
		fmt.Printf("[%s] %s: %s\n", status, r.name, r.message)
	}
	fmt.Printf("\nSummary: %d passed, %d failed\n", len(results)-failed, failed)

	if failed > 0 {
		os.Exit(1)
	}
}

// readInput reads the named file, or stdin for "" and "-".
func readInput(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

// verify parses text and reports each check. The returned items are
// normalized.
func verify(text string, sections *config.SectionTable) ([]timetable.Item, []verifyResult) {
	res, err := timetable.Parse(text)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, timetable.ErrNoDayMarkers) {
			msg = "no weekday markers found"
		}
		return nil, []verifyResult{{name: "Parse", passed: false, message: msg}}
	}

	items := timetable.Normalize(res.Items)
	results := []verifyResult{
		{
			name:    "Parse",
			passed:  len(items) > 0,
			message: fmt.Sprintf("%d items, %d courses", len(items), len(res.Courses)),
		},
		{
			name:    "Segment warnings",
			passed:  len(res.Warnings) == 0,
			message: warningSummary(res.Warnings),
		},
	}

	var unmapped []string
	for _, it := range items {
		if _, _, ok := sections.Span(it.SectionStart, it.SectionCount); !ok {
			unmapped = append(unmapped, fmt.Sprintf("%s (%s)", it.CourseName,
				timetable.FormatSections(it.SectionStart, it.SectionCount)))
		}
	}
	msg := "every item maps to clock times"
	if len(unmapped) > 0 {
		msg = fmt.Sprintf("no clock times for %v", unmapped)
	}
	results = append(results, verifyResult{name: "Section times", passed: len(unmapped) == 0, message: msg})

	return items, results
}

func warningSummary(warnings []*timetable.SegmentError) string {
	if len(warnings) == 0 {
		return "none"
	}
	msg := fmt.Sprintf("%d segment(s) skipped", len(warnings))
	for _, w := range warnings {
		msg += "\n    " + w.Error()
	}
	return msg
}
