package ports

import (
	"strings"
)

// LikeEscape is the escape character used in GetLike patterns
const LikeEscape = '\\'

// EscapeLike quotes the wildcard characters of s so it matches literally
func EscapeLike(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == LikeEscape {
			b.WriteRune(LikeEscape)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ContainsPattern returns the GetLike pattern matching values that contain q
func ContainsPattern(q string) string {
	return "%" + EscapeLike(q) + "%"
}

// MatchLike evaluates a LIKE pattern against value, case-insensitively.
// % matches any run of characters, _ matches one character, and the
// escape character makes the next character literal.
func MatchLike(pattern, value string) bool {
	return matchLike([]rune(strings.ToLower(pattern)), []rune(strings.ToLower(value)))
}

func matchLike(p, v []rune) bool {
	for len(p) > 0 {
		switch p[0] {
		case '%':
			for len(p) > 0 && p[0] == '%' {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(v); i++ {
				if matchLike(p, v[i:]) {
					return true
				}
			}
			return false
		case '_':
			if len(v) == 0 {
				return false
			}
			p, v = p[1:], v[1:]
		default:
			c := p[0]
			if c == LikeEscape && len(p) > 1 {
				p = p[1:]
				c = p[0]
			}
			if len(v) == 0 || v[0] != c {
				return false
			}
			p, v = p[1:], v[1:]
		}
	}
	return len(v) == 0
}
