package util

import (
	"strings"
	"unicode"
)

// DisplaySnippet trims decrypted record text down to a printable excerpt of at
// most maxRunes runes for context assembly.
func DisplaySnippet(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 420
	}
	s = SanitizeText(s)

	out := make([]rune, 0, len(s))
	lastSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastSpace {
				out = append(out, ' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		if !unicode.IsPrint(r) {
			continue
		}
		out = append(out, r)
	}
	trimmed := strings.TrimSpace(string(out))
	runes := []rune(trimmed)
	if len(runes) > maxRunes {
		return strings.TrimSpace(string(runes[:maxRunes])) + "..."
	}
	return trimmed
}
