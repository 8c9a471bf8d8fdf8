package gamehost

import (
	"strings"

	"trackcast/internal/broadcast"
)

const ansiReset = "\x1b[0m"

// colorCodes maps § formatting codes to SGR parameters.
var colorCodes = map[byte]string{
	'0': "30", '1': "34", '2': "32", '3': "36",
	'4': "31", '5': "35", '6': "33", '7': "37",
	'8': "90", '9': "94", 'a': "92", 'b': "96",
	'c': "91", 'd': "95", 'e': "93", 'f': "97",
	'l': "1", 'm': "9", 'n': "4", 'o': "3",
	'r': "0",
}

// ToANSI translates § codes to ANSI escapes and normalises line endings to
// CRLF. Unknown codes (including §k) are dropped. Output that switched a
// style on always ends with a reset.
func ToANSI(msg string) string {
	var (
		b      strings.Builder
		styled bool
		prev   byte
	)
	b.Grow(len(msg) + 16)
	for i := 0; i < len(msg); i++ {
		if strings.HasPrefix(msg[i:], string(broadcast.ColorPrefix)) {
			w := len(string(broadcast.ColorPrefix))
			if i+w < len(msg) {
				code := lower(msg[i+w])
				if sgr, ok := colorCodes[code]; ok {
					b.WriteString("\x1b[" + sgr + "m")
					styled = code != 'r'
				}
				i += w
				continue
			}
			break
		}
		c := msg[i]
		if c == '\n' && prev != '\r' {
			b.WriteByte('\r')
		}
		b.WriteByte(c)
		prev = c
	}
	if styled {
		b.WriteString(ansiReset)
	}
	return b.String()
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
