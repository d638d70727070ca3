package timetable

import "strings"

// extractCode finds the first course code in s and returns it together with
// s minus the code. A code starts with an uppercase ASCII letter, continues
// with uppercase letters, digits, dots or dashes, holds at least one digit and
// touches no other ASCII letter or digit on either side.
func extractCode(s string) (code, rest string) {
	for i := 0; i < len(s); i++ {
		if !isUpper(s[i]) || (i > 0 && isAlnumByte(s[i-1])) {
			continue
		}
		j := i + 1
		for j < len(s) && isCodeByte(s[j]) {
			j++
		}
		// Shorter ends are tried as well, so "CS101.x" still yields "CS101".
		for end := j; end > i+1; end-- {
			if end < len(s) && isAlnumByte(s[end]) {
				continue
			}
			if !strings.ContainsAny(s[i+1:end], "0123456789") {
				continue
			}
			return s[i:end], strings.TrimSpace(s[:i] + s[end:])
		}
	}
	return "", s
}

func isUpper(b byte) bool { return 'A' <= b && b <= 'Z' }

func isAlnumByte(b byte) bool {
	return isUpper(b) || ('a' <= b && b <= 'z') || ('0' <= b && b <= '9')
}

func isCodeByte(b byte) bool {
	return isUpper(b) || ('0' <= b && b <= '9') || b == '.' || b == '-'
}
