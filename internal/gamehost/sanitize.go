package gamehost

import (
	"strings"
	"unicode"
)

// sanitizeLine drops control and format runes from client input and
// collapses other whitespace to a plain space.
func sanitizeLine(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r", ""))
	clean := true
	for _, r := range s {
		if r != ' ' && (unicode.IsSpace(r) || !unicode.IsPrint(r)) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ' ':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r), !unicode.IsPrint(r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
