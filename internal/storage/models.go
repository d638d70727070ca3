package storage

import "time"

// Import statuses recorded in schedule_imports.
const (
	ImportStatusSuccess = "SUCCESS"
	ImportStatusFailAI  = "FAIL_AI"
)

// Term is a user's semester: week 1 starts on StartDate.
type Term struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	StartDate  time.Time `json:"start_date"`
	TotalWeeks *int      `json:"total_weeks,omitempty"`
	CreatedAt  int64     `json:"created_at"`
	UpdatedAt  int64     `json:"updated_at"`
}

// WeekOf returns the 1-based teaching week containing date, or 0 when date
// is before the term starts. Only calendar dates are compared.
func (t *Term) WeekOf(date time.Time) int {
	start := civilDate(t.StartDate)
	d := civilDate(date)
	if d.Before(start) {
		return 0
	}
	days := int(d.Sub(start).Hours() / 24)
	return days/7 + 1
}

// InRange reports whether week lies inside the term's configured length.
func (t *Term) InRange(week int) bool {
	if week <= 0 {
		return false
	}
	return t.TotalWeeks == nil || week <= *t.TotalWeeks
}

// Course is a distinct (name, teacher) pair within a term.
type Course struct {
	ID       int64    `json:"id"`
	UserID   string   `json:"user_id"`
	TermID   int64    `json:"term_id"`
	Name     string   `json:"name"`
	Code     *string  `json:"code,omitempty"`
	Teacher  *string  `json:"teacher,omitempty"`
	Credit   *float64 `json:"credit,omitempty"`
	ColorTag *string  `json:"color_tag,omitempty"`
}

// ScheduleItem is one weekly recurring meeting of a course.
type ScheduleItem struct {
	ID           int64   `json:"id"`
	UserID       string  `json:"user_id"`
	TermID       int64   `json:"term_id"`
	CourseID     int64   `json:"course_id"`
	DayOfWeek    int     `json:"day_of_week"`
	SectionStart int     `json:"section_start"`
	SectionCount int     `json:"section_count"`
	WeekStart    int     `json:"week_start"`
	WeekEnd      int     `json:"week_end"`
	Parity       int     `json:"week_odd_even"`
	Classroom    string  `json:"classroom"`
	Campus       *string `json:"campus,omitempty"`
	Remark       *string `json:"remark,omitempty"`
	RawTimeExpr  string  `json:"raw_time_expr"`
}

// ImportRecord is the audit row written for every import attempt.
type ImportRecord struct {
	ID         int64  `json:"id"`
	ImportID   string `json:"import_id"`
	UserID     string `json:"user_id"`
	TermID     int64  `json:"term_id"`
	ImageURL   string `json:"image_url"`
	RawText    string `json:"raw_text"`
	ParsedJSON string `json:"parsed_json"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// Subscription holds a user's daily digest preference.
type Subscription struct {
	UserID       string `json:"user_id"`
	Subscribed   bool   `json:"subscribed"`
	Timezone     string `json:"timezone"`
	DailyTime    string `json:"daily_time"`
	LastSentDate string `json:"last_sent_date,omitempty"`
	UpdatedAt    int64  `json:"updated_at"`
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
