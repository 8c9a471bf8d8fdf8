package command

import "strings"

// Tokenize splits command text into tokens while supporting quotes.
//
//	/track add "Some Name"
func Tokenize(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out   []string
		buf   strings.Builder
		inQ   bool
		qChar byte
		esc   bool
	)
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case esc:
			buf.WriteByte(ch)
			esc = false
		case ch == '\\':
			esc = true
		case inQ && ch == qChar:
			inQ = false
		case inQ:
			buf.WriteByte(ch)
		case ch == '"' || ch == '\'':
			inQ, qChar = true, ch
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}

// IsTrackLine reports whether line invokes the track command
// ("track ...", "/track ...", "/track@bot ...").
func IsTrackLine(line string) bool {
	toks := strings.Fields(line)
	return len(toks) > 0 && isLabel(toks[0])
}

func isLabel(tok string) bool {
	tok = strings.TrimPrefix(tok, "/")
	if at := strings.IndexByte(tok, '@'); at >= 0 {
		tok = tok[:at]
	}
	return strings.EqualFold(tok, "track")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
