// Package keywords keeps the per-guild keyword notification index and the
// settings documents behind it.
package keywords

import (
	"strings"
	"unicode"

	"github.com/asmejkal/DustyBot-sub000/internal/utils"
)

// Entry is one keyword a user asked to be notified about.
type Entry struct {
	OwnerID   string `json:"owner_id"`
	Word      string `json:"word"`
	Original  string `json:"original"`
	Triggered int    `json:"triggered"`
}

// Match is a keyword occurrence in lowered text. Start and End are rune
// offsets, End exclusive.
type Match struct {
	Start int
	End   int
	Entry Entry
}

// Whole reports whether the occurrence is not glued to letters on either side.
func (m Match) Whole(text []rune) bool {
	return utils.IsWordMatch(text, m.Start, m.End)
}

type node struct {
	children map[rune]*node
	entries  []Entry
}

// Index is an immutable character trie over lowered keywords. It is rebuilt
// from scratch whenever the keyword set changes.
type Index struct {
	root *node
	size int
}

// Build indexes entries by their lowered word. Entries sharing a word share
// the terminal node.
func Build(entries []Entry) *Index {
	ix := &Index{root: &node{}}
	for _, entry := range entries {
		word := []rune(entry.Word)
		if len(word) == 0 {
			continue
		}
		cur := ix.root
		for _, r := range word {
			next := cur.children[r]
			if next == nil {
				if cur.children == nil {
					cur.children = make(map[rune]*node)
				}
				next = &node{}
				cur.children[r] = next
			}
			cur = next
		}
		cur.entries = append(cur.entries, entry)
		ix.size++
	}
	return ix
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.size
}

// Match returns every keyword occurrence in text, overlapping ones included.
// text must be lowered with Lower. Boundaries are not checked here.
func (ix *Index) Match(text []rune) []Match {
	if ix == nil || ix.size == 0 {
		return nil
	}
	var out []Match
	for start := range text {
		cur := ix.root
		for i := start; i < len(text); i++ {
			cur = cur.children[text[i]]
			if cur == nil {
				break
			}
			for _, entry := range cur.entries {
				out = append(out, Match{Start: start, End: i + 1, Entry: entry})
			}
		}
	}
	return out
}

// Lower lowers text rune by rune so that offsets line up with the input.
func Lower(text string) []rune {
	runes := []rune(text)
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

// Normalize returns the lowered form a keyword is stored and matched under.
func Normalize(word string) string {
	return string(Lower(strings.TrimSpace(word)))
}
