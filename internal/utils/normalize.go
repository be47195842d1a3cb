package utils

import (
	"strings"
	"unicode"
)

// NormalizeIdentifier upper-cases s and drops every whitespace rune, so that
// "mscu 765432 1" and "MSCU7654321" compare equal.
func NormalizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
