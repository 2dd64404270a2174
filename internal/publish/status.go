package publish

import (
	"strings"
	"unicode/utf8"
)

const maxStatusLen = 280

// FormatStatus turns a meme title into status text: surrounding whitespace
// trimmed, truncated to 280 runes with an ellipsis when needed. Inner
// whitespace and line breaks are kept.
func FormatStatus(title string) string {
	text := strings.TrimSpace(title)
	if runeLen(text) <= maxStatusLen {
		return text
	}
	const ellipsis = "…"
	body := strings.TrimSpace(truncateRunes(text, maxStatusLen-runeLen(ellipsis)))
	return body + ellipsis
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
