package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SectionTime is the wall-clock span of one teaching section.
type SectionTime struct {
	Section int    `yaml:"section"`
	Start   string `yaml:"start"` // HH:MM
	End     string `yaml:"end"`   // HH:MM
}

// SectionTable maps section numbers to clock times. It backs calendar and
// spreadsheet exports.
type SectionTable struct {
	Sections []SectionTime `yaml:"sections"`

	byNumber map[int]clockSpan
}

type clockSpan struct {
	start, end time.Duration
}

// DefaultSectionTable returns a twelve-section day: four morning, four
// afternoon and four evening sections of 45 minutes.
func DefaultSectionTable() *SectionTable {
	t := &SectionTable{Sections: []SectionTime{
		{1, "08:30", "09:15"},
		{2, "09:20", "10:05"},
		{3, "10:20", "11:05"},
		{4, "11:10", "11:55"},
		{5, "14:30", "15:15"},
		{6, "15:20", "16:05"},
		{7, "16:20", "17:05"},
		{8, "17:10", "17:55"},
		{9, "19:30", "20:15"},
		{10, "20:20", "21:05"},
		{11, "21:10", "21:55"},
		{12, "22:00", "22:45"},
	}}
	if err := t.index(); err != nil {
		panic(err)
	}
	return t
}

// LoadSectionTable reads a YAML section table. An empty path returns the
// default table.
//
//	sections:
//	  - {section: 1, start: "08:00", end: "08:45"}
func LoadSectionTable(path string) (*SectionTable, error) {
	if path == "" {
		return DefaultSectionTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read section table: %w", err)
	}
	return ParseSectionTable(data)
}

// ParseSectionTable decodes and validates a YAML section table.
func ParseSectionTable(data []byte) (*SectionTable, error) {
	var t SectionTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse section table: %w", err)
	}
	if len(t.Sections) == 0 {
		return nil, fmt.Errorf("section table has no sections")
	}
	if err := t.index(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *SectionTable) index() error {
	t.byNumber = make(map[int]clockSpan, len(t.Sections))
	for _, s := range t.Sections {
		if s.Section < 1 {
			return fmt.Errorf("section %d: number must be >= 1", s.Section)
		}
		start, err := parseClock(s.Start)
		if err != nil {
			return fmt.Errorf("section %d start: %w", s.Section, err)
		}
		end, err := parseClock(s.End)
		if err != nil {
			return fmt.Errorf("section %d end: %w", s.Section, err)
		}
		if end <= start {
			return fmt.Errorf("section %d ends before it starts", s.Section)
		}
		if _, dup := t.byNumber[s.Section]; dup {
			return fmt.Errorf("section %d listed twice", s.Section)
		}
		t.byNumber[s.Section] = clockSpan{start: start, end: end}
	}
	return nil
}

// Span returns the offsets from midnight at which a run of count sections
// starting at start begins and ends.
func (t *SectionTable) Span(start, count int) (begin, end time.Duration, ok bool) {
	first, ok1 := t.byNumber[start]
	last, ok2 := t.byNumber[start+count-1]
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return first.start, last.end, true
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	return parseClock(s)
}

func parseClock(s string) (time.Duration, error) {
	tm, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	return time.Duration(tm.Hour())*time.Hour + time.Duration(tm.Minute())*time.Minute, nil
}
