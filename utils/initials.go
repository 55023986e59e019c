package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const SelfSuffix = " (You)"

// Initials returns up to two upper-case initials, ignoring the self marker.
func Initials(name string) string {
	cleaned := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(name), strings.TrimSpace(SelfSuffix)))
	var b strings.Builder
	for i, word := range strings.Fields(cleaned) {
		if i == 2 {
			break
		}
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// SelfName appends the self marker unless it is already there.
func SelfName(name string) string {
	if strings.HasSuffix(name, SelfSuffix) {
		return name
	}
	return name + SelfSuffix
}
