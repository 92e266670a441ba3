package rules

import (
	"fmt"
	"strings"

	"github.com/asmejkal/DustyBot-sub000/internal/utils"
)

// Phrase is a compiled blacklist entry. A leading or trailing "*" in the
// stored text turns off the letter-boundary check on that side.
type Phrase struct {
	Text       string
	OpenStart  bool
	OpenEnd    bool
	lowerRunes []rune
}

func ParsePhrase(raw string) (Phrase, error) {
	text := strings.TrimSpace(raw)
	p := Phrase{Text: text}
	if strings.HasPrefix(text, "*") {
		p.OpenStart = true
		text = text[1:]
	}
	if strings.HasSuffix(text, "*") {
		p.OpenEnd = true
		text = text[:len(text)-1]
	}
	if text == "" {
		return Phrase{}, fmt.Errorf("%w: empty phrase", ErrInvalidRule)
	}
	if strings.Contains(text, "*") {
		return Phrase{}, fmt.Errorf("%w: %q", ErrUnsupportedWildcard, raw)
	}
	p.lowerRunes = []rune(strings.ToLower(text))
	return p, nil
}

// MatchIn reports whether the phrase occurs in lowered text under its
// boundary rules. text must already be lower-cased.
func (p Phrase) MatchIn(text []rune) bool {
	n := len(p.lowerRunes)
	if n == 0 || n > len(text) {
		return false
	}
	for start := 0; start+n <= len(text); start++ {
		if !runesEqual(text[start:start+n], p.lowerRunes) {
			continue
		}
		if !p.OpenStart && !utils.BoundaryBefore(text, start) {
			continue
		}
		if !p.OpenEnd && !utils.BoundaryAfter(text, start+n) {
			continue
		}
		return true
	}
	return false
}

// CompilePhrases parses every phrase, skipping the ones that fail validation.
// Stored configuration is validated on write, so failures here mean a stale
// document.
func CompilePhrases(raw []string) []Phrase {
	out := make([]Phrase, 0, len(raw))
	for _, value := range raw {
		phrase, err := ParsePhrase(value)
		if err != nil {
			continue
		}
		out = append(out, phrase)
	}
	return out
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
