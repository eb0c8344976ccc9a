// Package textutil holds the shared token estimator and excerpt helper.
package textutil

import "unicode/utf8"

// CharsPerToken is the rough characters-per-token ratio used for budgeting.
const CharsPerToken = 4

// EstimateTokens estimates the token count of text as characters/4.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / CharsPerToken
}

// Excerpt returns the first n characters of s followed by "...". The
// suffix is always present so every source block and citation reads as an
// excerpt.
func Excerpt(s string, n int) string {
	if n <= 0 {
		return "..."
	}
	if utf8.RuneCountInString(s) <= n {
		return s + "..."
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
