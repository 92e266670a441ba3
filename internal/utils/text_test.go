package utils

import "testing"

func TestIsWordMatch(t *testing.T) {
	text := []rune("say hello, concatenate")
	if !IsWordMatch(text, 4, 9) {
		t.Fatalf("expected hello to be a word match")
	}
	if IsWordMatch(text, 14, 17) {
		t.Fatalf("expected cat inside concatenate to fail")
	}
	if !BoundaryBefore(text, 0) || !BoundaryAfter(text, len(text)) {
		t.Fatalf("edges should always be boundaries")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Truncate("héllo world", 5); got != "héll…" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Fatalf("unexpected %q", got)
	}
}
