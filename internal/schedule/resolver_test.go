package schedule

import (
	"testing"
)

func TestResolveDate(t *testing.T) {
	t.Parallel()
	today := date(t, "2026-10-14") // Wednesday

	tests := []struct {
		question string
		want     string
	}{
		{"我今天有什么课", "2026-10-14"},
		{"明天呢", "2026-10-15"},
		{"翌日 有课吗", "2026-10-15"},
		{"后天上午", "2026-10-16"},
		{"昨天上了什么", "2026-10-13"},
		{"前天", "2026-10-12"},
		{"这周五下午有什么课", "2026-10-16"},
		{"周一", "2026-10-12"},
		{"下周五", "2026-10-23"},
		{"下 星期 五", "2026-10-23"},
		{"上礼拜一", "2026-10-05"},
		{"下下周日", "2026-11-01"},
		{"本星期天", "2026-10-18"},
		{"后天那周的周一", "2026-10-12"},
		{"随便问问", "2026-10-14"},
		{"", "2026-10-14"},
	}
	for _, tt := range tests {
		got := ResolveDate(tt.question, today).Format("2006-01-02")
		if got != tt.want {
			t.Errorf("ResolveDate(%q) = %s, want %s", tt.question, got, tt.want)
		}
	}
}

func TestResolvePeriod(t *testing.T) {
	t.Parallel()
	tests := []struct {
		question string
		want     Period
	}{
		{"明天上午有课吗", Morning},
		{"早上第一节", Morning},
		{"中午之后", Afternoon},
		{"周五下午", Afternoon},
		{"今天晚上", Evening},
		{"夜里", Evening},
		{"明天", AllDay},
	}
	for _, tt := range tests {
		if got := ResolvePeriod(tt.question); got != tt.want {
			t.Errorf("ResolvePeriod(%q) = %v, want %v", tt.question, got, tt.want)
		}
	}
}

func TestFilterByPeriod(t *testing.T) {
	t.Parallel()
	entries := []Entry{
		{CourseName: "a", SectionStart: 1, SectionCount: 2},
		{CourseName: "b", SectionStart: 4, SectionCount: 2},
		{CourseName: "c", SectionStart: 7, SectionCount: 2},
		{CourseName: "d", SectionStart: 9, SectionCount: 3},
	}
	tests := []struct {
		period Period
		want   []string
	}{
		{AllDay, []string{"a", "b", "c", "d"}},
		{Morning, []string{"a", "b"}},
		{Afternoon, []string{"b", "c"}},
		{Evening, []string{"d"}},
	}
	for _, tt := range tests {
		got := names(FilterByPeriod(entries, tt.period))
		if len(got) != len(tt.want) {
			t.Errorf("FilterByPeriod(%v) = %v, want %v", tt.period, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("FilterByPeriod(%v) = %v, want %v", tt.period, got, tt.want)
				break
			}
		}
	}
}

func TestPeriodString(t *testing.T) {
	t.Parallel()
	if Morning.String() != "上午" || AllDay.String() != "全天" {
		t.Error("unexpected period names")
	}
}
