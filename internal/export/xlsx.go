package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/garyellow/timetable-linebot-go/internal/config"
	"github.com/garyellow/timetable-linebot-go/internal/timetable"
)

var weekdayNames = []string{"周一", "周二", "周三", "周四", "周五", "周六", "周日"}

// maxSheets bounds the workbook for terms without a sane length.
const maxSheets = 30

// SheetName returns the sheet holding a teaching week.
func SheetName(week int) string {
	return fmt.Sprintf("第%d周", week)
}

// BuildXLSX renders one sheet per teaching week. Rows are sections and
// columns are Monday to Sunday; a cell lists every class covering that
// section, one per line.
func BuildXLSX(tt *Timetable, sections *config.SectionTable) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	lastSection := 12
	for _, it := range tt.Items {
		lastSection = max(lastSection, it.SectionStart+it.SectionCount-1)
	}
	weeks := min(lastWeek(tt), maxSheets)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("xlsx: header style: %w", err)
	}
	cellStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		return nil, fmt.Errorf("xlsx: cell style: %w", err)
	}

	for week := 1; week <= weeks; week++ {
		sheet := SheetName(week)
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("xlsx: new sheet: %w", err)
		}
		if err := writeWeek(f, sheet, week, lastSection, tt, sections, headerStyle, cellStyle); err != nil {
			return nil, err
		}
	}
	if weeks > 0 {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("xlsx: delete default sheet: %w", err)
		}
		f.SetActiveSheet(0)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx: write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeWeek(f *excelize.File, sheet string, week, lastSection int, tt *Timetable, sections *config.SectionTable, headerStyle, cellStyle int) error {
	grid := make(map[[2]int][]string)
	for _, it := range tt.Items {
		if week < it.WeekStart || week > it.WeekEnd || !timetable.Parity(it.Parity).Matches(week) {
			continue
		}
		label := tt.Courses[it.CourseID].Name
		if it.Classroom != "" {
			label += " @" + it.Classroom
		}
		for sec := it.SectionStart; sec < it.SectionStart+it.SectionCount; sec++ {
			key := [2]int{sec, it.DayOfWeek}
			grid[key] = append(grid[key], label)
		}
	}

	set := func(col, row int, v any) error {
		name, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheet, name, v)
	}

	if err := set(1, 1, "节次"); err != nil {
		return fmt.Errorf("xlsx: header: %w", err)
	}
	for i, name := range weekdayNames {
		label := name
		if tt.Term != nil {
			label += " " + dateOf(tt.Term, week, i+1).Format("01-02")
		}
		if err := set(i+2, 1, label); err != nil {
			return fmt.Errorf("xlsx: header: %w", err)
		}
	}

	for sec := 1; sec <= lastSection; sec++ {
		row := sec + 1
		label := fmt.Sprintf("第%d节", sec)
		if begin, end, ok := sections.Span(sec, 1); ok {
			label += fmt.Sprintf("\n%02d:%02d-%02d:%02d",
				int(begin.Hours()), int(begin.Minutes())%60, int(end.Hours()), int(end.Minutes())%60)
		}
		if err := set(1, row, label); err != nil {
			return fmt.Errorf("xlsx: section label: %w", err)
		}
		for day := 1; day <= 7; day++ {
			if classes := grid[[2]int{sec, day}]; len(classes) > 0 {
				if err := set(day+1, row, strings.Join(classes, "\n")); err != nil {
					return fmt.Errorf("xlsx: cell: %w", err)
				}
			}
		}
	}

	if err := f.SetColWidth(sheet, "A", "A", 14); err != nil {
		return fmt.Errorf("xlsx: col width: %w", err)
	}
	if err := f.SetColWidth(sheet, "B", "H", 22); err != nil {
		return fmt.Errorf("xlsx: col width: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "H1", headerStyle); err != nil {
		return fmt.Errorf("xlsx: style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(8, lastSection+1)
	if err := f.SetCellStyle(sheet, "A2", last, cellStyle); err != nil {
		return fmt.Errorf("xlsx: style: %w", err)
	}
	return nil
}
