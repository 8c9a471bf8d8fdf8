package broadcast

import "strings"

// ColorPrefix starts a legacy chat formatting code such as "§a".
const ColorPrefix = '§'

// StripColors removes legacy formatting codes for plain-text sinks.
func StripColors(s string) string {
	if !strings.ContainsRune(s, ColorPrefix) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	skip := false
	for _, r := range s {
		if skip {
			skip = false
			continue
		}
		if r == ColorPrefix {
			skip = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
