package keywords

import (
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func wholeMatches(ix *Index, text string) []Match {
	lowered := Lower(text)
	var out []Match
	for _, m := range ix.Match(lowered) {
		if m.Whole(lowered) {
			out = append(out, m)
		}
	}
	return out
}

func TestMatchRespectsBoundaries(t *testing.T) {
	ix := Build([]Entry{
		{OwnerID: "a", Word: "hello", Original: "Hello"},
		{OwnerID: "a", Word: "cat", Original: "cat"},
	})

	got := wholeMatches(ix, "say HELLO world")
	want := []Match{{Start: 4, End: 9, Entry: Entry{OwnerID: "a", Word: "hello", Original: "Hello"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected matches (-want +got):\n%s", diff)
	}

	if got := wholeMatches(ix, "concatenate"); len(got) != 0 {
		t.Fatalf("expected no whole match in concatenate, got %+v", got)
	}
	if got := ix.Match(Lower("concatenate")); len(got) != 1 {
		t.Fatalf("expected the raw candidate to be reported, got %+v", got)
	}
	if got := wholeMatches(ix, "cat_dog 123cat!"); len(got) != 2 {
		t.Fatalf("expected matches delimited by non-letters, got %+v", got)
	}
}

func TestMatchFindsOverlappingAndSharedWords(t *testing.T) {
	ix := Build([]Entry{
		{OwnerID: "a", Word: "new"},
		{OwnerID: "b", Word: "new york"},
		{OwnerID: "c", Word: "york"},
		{OwnerID: "d", Word: "new"},
	})
	got := ix.Match(Lower("New York"))

	var owners []string
	for _, m := range got {
		owners = append(owners, m.Entry.OwnerID)
	}
	sort.Strings(owners)
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, owners); diff != "" {
		t.Fatalf("unexpected owners (-want +got):\n%s", diff)
	}
}

func TestMatchIsOrderIndependent(t *testing.T) {
	entries := []Entry{
		{OwnerID: "a", Word: "ab"},
		{OwnerID: "b", Word: "abc"},
		{OwnerID: "c", Word: "bc"},
		{OwnerID: "d", Word: "c"},
	}
	reversed := make([]Entry, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}

	text := Lower("xabcabc")
	key := func(ms []Match) []string {
		var out []string
		for _, m := range ms {
			out = append(out, m.Entry.OwnerID+":"+string(text[m.Start:m.End]))
		}
		sort.Strings(out)
		return out
	}

	first := key(Build(entries).Match(text))
	second := key(Build(reversed).Match(text))
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("match depends on insertion order (-first +second):\n%s", diff)
	}

	// Every reported occurrence is a real substring at that offset, and every
	// occurrence is reported.
	expected := 0
	for _, e := range entries {
		expected += strings.Count(string(text), e.Word)
	}
	if len(first) != expected {
		t.Fatalf("expected %d occurrences, got %d: %v", expected, len(first), first)
	}
}

func TestEmptyIndex(t *testing.T) {
	var ix *Index
	if ix.Match(Lower("anything")) != nil || ix.Len() != 0 {
		t.Fatalf("nil index must not match")
	}
	if Build([]Entry{{OwnerID: "a"}}).Len() != 0 {
		t.Fatalf("entries without a word must be skipped")
	}
}

func TestLowerKeepsOffsets(t *testing.T) {
	text := "ÀB ǅ"
	if len(Lower(text)) != len([]rune(text)) {
		t.Fatalf("lowering changed rune count")
	}
	if Normalize("  HeLLo ") != "hello" {
		t.Fatalf("unexpected normalized form %q", Normalize("  HeLLo "))
	}
}
