// internal/util/util.go
package util

import "unicode/utf8"

// TruncateRunes truncates a string to a maximum number of runes,
// appending an ellipsis if truncated. A non-positive max leaves text as is.
func TruncateRunes(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "…"
}
