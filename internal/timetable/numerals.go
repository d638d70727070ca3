package timetable

import (
	"slices"
	"strconv"
	"strings"
)

var chineseNumerals = map[string]int{
	"一":  1,
	"二":  2,
	"三":  3,
	"四":  4,
	"五":  5,
	"六":  6,
	"七":  7,
	"八":  8,
	"九":  9,
	"十":  10,
	"十一": 11,
	"十二": 12,
}

// ChineseNumber converts a section numeral such as "五" or "十一" to an int.
// "十X" is read as 10+X. Plain ASCII digits are accepted as well. Unknown
// numerals yield 1 and ok=false.
func ChineseNumber(s string) (n int, ok bool) {
	s = strings.TrimSpace(s)
	if v, found := chineseNumerals[s]; found {
		return v, true
	}
	if rest, found := strings.CutPrefix(s, "十"); found {
		if rest == "" {
			return 10, true
		}
		v, ok := ChineseNumber(rest)
		return 10 + v, ok
	}
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v, true
	}
	return 1, false
}

// parseSections reads a "、"-joined numeral list. The start is the smallest
// numeral and the count is the number of numerals. An empty list means
// sections 1 and 2.
func parseSections(text string) (start, count int, unknown []string) {
	var nums []int
	for _, p := range strings.Split(text, "、") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, ok := ChineseNumber(p)
		if !ok {
			unknown = append(unknown, p)
		}
		nums = append(nums, v)
	}
	if len(nums) == 0 {
		return 1, 2, unknown
	}
	slices.Sort(nums)
	return nums[0], len(nums), unknown
}
