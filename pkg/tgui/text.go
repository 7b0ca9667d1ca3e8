package tgui

import "unicode/utf8"

// CaptionLimit is the maximum media caption length in runes.
const CaptionLimit = 1024

// TruncRunes cuts s to at most n runes, ending with "…" when shortened.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n-1 {
			return s[:i] + "…"
		}
		count++
	}
	return s
}
