package timetable

import (
	"errors"
	"reflect"
	"testing"
)

func TestExtractCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, code, rest string
	}{
		{"测试课 张三 T000001 1-7周 教一楼101", "T000001", "测试课 张三  1-7周 教一楼101"},
		{"网络 R0902840.01 1-7周", "R0902840.01", "网络  1-7周"},
		{"形势与政策 商继政 M1800220.C4 14周", "M1800220.C4", "形势与政策 商继政  14周"},
		{"no code here ABC", "", "no code here ABC"},
		{"xA123 A1", "A1", "xA123"},
		{"CS101.x", "CS101", ".x"},
		{"CS101a", "", "CS101a"},
	}
	for _, tt := range tests {
		code, rest := extractCode(tt.in)
		if code != tt.code || rest != tt.rest {
			t.Errorf("extractCode(%q) = (%q, %q), want (%q, %q)", tt.in, code, rest, tt.code, tt.rest)
		}
	}
}

func TestParseSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want Segment
	}{
		{
			name: "basic",
			in:   "第一、二节 测试课 张三 T000001 1-7周 教一楼101",
			want: Segment{
				SectionStart: 1, SectionCount: 2,
				Code: "T000001", CourseName: "测试课", Teacher: "张三", Classroom: "教一楼101",
				WeekRanges: []WeekRange{{1, 7}},
				WeekRooms:  []WeekRoom{{Weeks: WeekRange{1, 7}, Classroom: "教一楼101"}},
			},
		},
		{
			name: "multiple rooms",
			in:   "第一、二节 网络安全攻防技术 罗绪成 R0902840.01 14-15周 信软楼西305、信软楼西306",
			want: Segment{
				SectionStart: 1, SectionCount: 2,
				Code: "R0902840.01", CourseName: "网络安全攻防技术", Teacher: "罗绪成",
				Classroom:  "信软楼西305、信软楼西306",
				WeekRanges: []WeekRange{{14, 15}},
				WeekRooms:  []WeekRoom{{Weeks: WeekRange{14, 15}, Classroom: "信软楼西305、信软楼西306"}},
			},
		},
		{
			name: "no teacher",
			in:   "第五、六、七、八节 企业合作课程 T0902820.01 1-9周 科技实验大楼705",
			want: Segment{
				SectionStart: 5, SectionCount: 4,
				Code: "T0902820.01", CourseName: "企业合作课程", Classroom: "科技实验大楼705",
				WeekRanges: []WeekRange{{1, 9}},
				WeekRooms:  []WeekRoom{{Weeks: WeekRange{1, 9}, Classroom: "科技实验大楼705"}},
			},
		},
		{
			name: "western teacher",
			in:   "第三、四节 学术英语写作 John Smith 1-8周 教三楼301",
			want: Segment{
				SectionStart: 3, SectionCount: 2,
				CourseName: "学术英语写作", Teacher: "John Smith",
				Classroom:  "教三楼301",
				WeekRanges: []WeekRange{{1, 8}},
				WeekRooms:  []WeekRoom{{Weeks: WeekRange{1, 8}, Classroom: "教三楼301"}},
			},
		},
		{
			name: "week without room then week with room",
			in:   "第九、十节 实训 赵敏 3周 5-6周 实训楼201",
			want: Segment{
				SectionStart: 9, SectionCount: 2,
				CourseName: "实训", Teacher: "赵敏", Classroom: "实训楼201",
				WeekRanges: []WeekRange{{3, 3}, {5, 6}},
				WeekRooms:  []WeekRoom{{Weeks: WeekRange{5, 6}, Classroom: "实训楼201"}},
			},
		},
		{
			name: "no weeks",
			in:   "第一节 体育 王强 操场",
			want: Segment{
				SectionStart: 1, SectionCount: 1,
				CourseName: "体育", Teacher: "王强", Classroom: "操场",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSegment(tt.in)
			if err != nil {
				t.Fatalf("ParseSegment() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseSegment() =\n%+v\nwant\n%+v", got, tt.want)
			}
		})
	}
}

func TestParseSegment_Skipped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		reason string
	}{
		{"测试课 张三 1-7周 教一楼101", ReasonNoSectionRange},
		{"第一节 教一楼101", ReasonTooFewFields},
		{"第一节 T000001 1-7周", ReasonTooFewFields},
	}
	for _, tt := range tests {
		_, err := ParseSegment(tt.in)
		var se *SegmentError
		if !errors.As(err, &se) {
			t.Fatalf("ParseSegment(%q) error = %v, want *SegmentError", tt.in, err)
		}
		if !se.Skipped || se.Reason != tt.reason {
			t.Errorf("ParseSegment(%q) = %+v, want skipped with %q", tt.in, se, tt.reason)
		}
	}
}

func TestIsClassroomToken(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"教一楼101":   true,
		"多媒体教室":    true,
		"A305":     true,
		"操场":       false,
		"张三":       false,
		"12":       false,
		"第二教学楼104": true,
	}
	for tok, want := range tests {
		if got := IsClassroomToken(tok); got != want {
			t.Errorf("IsClassroomToken(%q) = %v, want %v", tok, got, want)
		}
	}
}
