package stdx

import "unicode/utf8"

// Truncate shortens s to at most n runes. A truncated string ends with an ellipsis
// that counts toward n. Non-positive n disables truncation.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
