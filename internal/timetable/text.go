package timetable

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

var (
	lineBreakRe  = regexp.MustCompile(`[\r\n]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeText folds full-width digits, Latin letters, the hyphen and the
// ideographic space to ASCII, turns line breaks into spaces, collapses
// whitespace runs and trims the result. Other full-width punctuation such as
// "：" and "；" is left alone.
func NormalizeText(s string) string {
	s = foldWidth(s)
	s = lineBreakRe.ReplaceAllString(s, " ")
	return collapseSpaces(s)
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func foldWidth(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '　' {
			return ' '
		}
		p := width.LookupRune(r)
		if p.Kind() != width.EastAsianFullwidth {
			return r
		}
		if n := p.Narrow(); isASCIIAlnum(n) || n == '-' {
			return n
		}
		return r
	}, s)
}

func isASCIIAlnum(r rune) bool {
	return ('0' <= r && r <= '9') || ('A' <= r && r <= 'Z') || ('a' <= r && r <= 'z')
}
