package qa

import (
	"log/slog"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-ego/gse"

	"github.com/garyellow/timetable-linebot-go/internal/schedule"
)

// Tokenizer splits a question into words.
type Tokenizer interface {
	Cut(text string) []string
}

// stopWords never narrow the course list on their own.
var stopWords = map[string]bool{
	"今天": true, "今日": true, "明天": true, "昨天": true, "后天": true, "前天": true, "当日": true, "翌日": true,
	"上午": true, "下午": true, "中午": true, "晚上": true, "早上": true, "早晨": true, "晚间": true, "夜里": true, "夜晚": true,
	"本周": true, "这周": true, "下周": true, "上周": true, "下下周": true, "星期": true, "礼拜": true,
	"周一": true, "周二": true, "周三": true, "周四": true, "周五": true, "周六": true, "周日": true,
	"课程": true, "课表": true, "上课": true, "有课": true, "什么": true, "哪些": true, "哪里": true,
	"几节": true, "教室": true, "老师": true, "安排": true, "没有": true, "是否": true, "需要": true,
	"一下": true, "请问": true, "我的": true, "几点": true, "时候": true,
}

// SegmenterTokenizer cuts words with the gse dictionary. The dictionary is
// loaded on first use; until it loads, or if loading fails, text is cut into
// CJK bigrams instead.
type SegmenterTokenizer struct {
	once sync.Once
	seg  *gse.Segmenter
}

// NewSegmenterTokenizer creates a tokenizer with a lazily loaded dictionary.
func NewSegmenterTokenizer() *SegmenterTokenizer {
	return &SegmenterTokenizer{}
}

// Cut implements Tokenizer.
func (t *SegmenterTokenizer) Cut(text string) []string {
	t.once.Do(t.load)
	if t.seg == nil {
		return bigrams(text)
	}
	return t.seg.Cut(text, true)
}

func (t *SegmenterTokenizer) load() {
	seg := new(gse.Segmenter)
	seg.SkipLog = true
	if err := seg.LoadDictEmbed(); err != nil {
		slog.Warn("failed to load segmenter dictionary, using bigrams", "error", err)
		return
	}
	t.seg = seg
}

// Keywords returns the question's content words that may name a course,
// teacher or course code. Stop words and single runes are dropped.
func Keywords(tok Tokenizer, question string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range tok.Cut(question) {
		w = strings.TrimSpace(strings.ToLower(w))
		if utf8.RuneCountInString(w) < 2 || stopWords[w] || seen[w] || !(hasHan(w) || codeLike(w)) {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// Narrow keeps the entries whose course name, code or teacher contains one
// of the keywords. When nothing matches, the question did not name a course
// and all entries are returned.
func Narrow(entries []schedule.Entry, keywords []string) []schedule.Entry {
	if len(keywords) == 0 || len(entries) == 0 {
		return entries
	}
	var out []schedule.Entry
	for _, e := range entries {
		if mentions(e, keywords) {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return entries
	}
	return out
}

func mentions(e schedule.Entry, keywords []string) bool {
	name := strings.ToLower(e.CourseName)
	code := strings.ToLower(e.CourseCode)
	for _, k := range keywords {
		if strings.Contains(name, k) || (e.Teacher != "" && strings.Contains(k, e.Teacher)) || (code != "" && strings.HasPrefix(code, k)) {
			return true
		}
	}
	return false
}

// bigrams cuts CJK runs into overlapping character pairs and keeps other
// alphanumeric runs whole.
func bigrams(text string) []string {
	var (
		tokens []string
		word   strings.Builder
	)
	runes := []rune(strings.ToLower(text))
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}
	for i, r := range runes {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			if i+1 < len(runes) && unicode.Is(unicode.Han, runes[i+1]) {
				tokens = append(tokens, string(runes[i:i+2]))
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// codeLike matches course codes such as "r0902840.01".
func codeLike(s string) bool {
	var letter, digit bool
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		case r == '.':
		default:
			return false
		}
	}
	return letter && digit && len(s) >= 5
}
