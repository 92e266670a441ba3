package utils

import "unicode"

// BoundaryBefore reports whether the rune preceding start is absent or not a letter.
func BoundaryBefore(text []rune, start int) bool {
	return start <= 0 || !unicode.IsLetter(text[start-1])
}

// BoundaryAfter reports whether the rune at end is absent or not a letter.
func BoundaryAfter(text []rune, end int) bool {
	return end >= len(text) || !unicode.IsLetter(text[end])
}

// IsWordMatch applies both boundary checks to text[start:end].
func IsWordMatch(text []rune, start, end int) bool {
	return BoundaryBefore(text, start) && BoundaryAfter(text, end)
}

// Truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	return string(runes[:limit-1]) + "…"
}
