package timetable

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// commonSurnames lists family-name characters that make a token look like a
// person's name.
const commonSurnames = "赵钱孙李周吴郑王冯陈褚卫蒋沈韩杨朱秦尤许何吕施张孔曹严华金魏陶姜戚谢邹喻柏水窦章云苏潘葛奚范彭郎鲁韦昌马苗凤花方俞任袁柳鲍史唐费廉岑薛雷贺倪汤罗毕郝邬安常乐于时傅皮卞齐康伍余元顾孟平黄和穆萧尹姚邵湛汪祁毛禹狄米贝明臧计伏成戴谈宋茅庞熊纪舒屈项祝董梁杜阮蓝闵席季麻强贾路娄危支柯管卢莫经房裘干解应宗丁宣邓郁单杭洪包诸左石崔吉钮龚程嵇邢滑裴陆荣辛阎赫鲜敖詹仇冉宓隗瞿阚胥佘阴"

// courseSuffixes are fragments that mark a token as part of a course name.
var courseSuffixes = []string{
	"学", "论", "术", "技", "设计", "课程", "基础", "原理", "概论", "思想",
	"政策", "英语", "体育", "实验", "工程", "管理", "数据", "网络", "计算", "技术",
}

var (
	hanNameRe    = regexp.MustCompile(`^\p{Han}{2,3}(?:、\p{Han}{2,3})*$`)
	noisyCharsRe = regexp.MustCompile(`[0-9（）()\[\]]`)
	// Han characters count as word characters on both sides of the name.
	westernNameRe = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])([A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+)+)(?:$|[^\p{L}\p{N}_])`)
)

// westernName returns the first run of two or more capitalized Latin words
// that is not glued to other letters or digits.
func westernName(s string) string {
	if m := westernNameRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// ScoreTeacherToken rates how much tokens[idx] looks like a teacher name.
// total is the number of tokens in the segment.
func ScoreTeacherToken(token string, idx, total int) int {
	score := 0
	if hanNameRe.MatchString(token) {
		score += 3
	}
	if r, _ := utf8.DecodeRuneInString(token); token != "" && strings.ContainsRune(commonSurnames, r) {
		score += 2
	}
	for _, suf := range courseSuffixes {
		if strings.Contains(token, suf) {
			score -= 4
			break
		}
	}
	if noisyCharsRe.MatchString(token) {
		score -= 3
	}
	if idx == total-2 {
		score++
	}
	return score
}

// PickTeacher returns the index of the best teacher candidate among tokens,
// ignoring the token at skip. The earliest token wins a tie. ok is false when
// no token scores above zero.
func PickTeacher(tokens []string, skip int) (idx int, ok bool) {
	best, bestIdx := math.MinInt, -1
	for i, t := range tokens {
		if i == skip {
			continue
		}
		if s := ScoreTeacherToken(t, i, len(tokens)); s > best {
			best, bestIdx = s, i
		}
	}
	if best > 0 && bestIdx >= 0 {
		return bestIdx, true
	}
	return -1, false
}
