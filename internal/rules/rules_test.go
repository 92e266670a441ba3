package rules

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseRuleType(t *testing.T) {
	got, err := ParseRuleType("TextSpam")
	if err != nil || got != TextSpam {
		t.Fatalf("expected TextSpam, got %v %v", got, err)
	}
	if _, err := ParseRuleType("nonsense"); !errors.Is(err, ErrUnknownRule) {
		t.Fatalf("expected ErrUnknownRule, got %v", err)
	}
}

func TestValidateRule(t *testing.T) {
	tests := []struct {
		name string
		typ  RuleType
		rule Rule
		want error
	}{
		{"disabled empty spam rule", TextSpam, Rule{}, nil},
		{"enabled spam rule", TextSpam, Rule{Enabled: true, Threshold: 5, Window: 10 * time.Second}, nil},
		{"spam without window", ImageSpam, Rule{Enabled: true, Threshold: 5}, ErrInvalidRule},
		{"mentions without threshold", MassMentions, Rule{Enabled: true}, ErrInvalidRule},
		{"negative threshold", PhraseBlacklist, Rule{Threshold: -1}, ErrInvalidRule},
		{"offenses without window", TextSpam, Rule{MaxOffenses: 3}, ErrInvalidRule},
		{"unknown type", RuleType(42), Rule{}, ErrUnknownRule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRule(tt.typ, tt.rule)
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestConfigSetRule(t *testing.T) {
	var cfg Config
	rule := Rule{Enabled: true, Threshold: 3, Window: time.Second, MaxOffenses: 2, OffenseWindow: time.Minute}
	if err := cfg.SetRule(ImageSpam, rule); err != nil {
		t.Fatalf("set rule: %v", err)
	}
	if cfg.Rule(ImageSpam) != rule || !cfg.Rule(ImageSpam).Escalates() {
		t.Fatalf("rule not stored: %+v", cfg.ImageSpam)
	}
	if err := cfg.SetRule(ImageSpam, Rule{Enabled: true}); err == nil {
		t.Fatalf("expected validation error")
	}
	if cfg.Rule(ImageSpam) != rule {
		t.Fatalf("invalid rule must not be applied")
	}
}

func TestConfigValidateRejectsBadPhrase(t *testing.T) {
	cfg := Config{PhraseBlacklist: BlacklistRule{Phrases: []string{"free nitro", "mid*dle"}}}
	if err := cfg.Validate(); !errors.Is(err, ErrUnsupportedWildcard) {
		t.Fatalf("expected ErrUnsupportedWildcard, got %v", err)
	}
}

func TestPhraseMatch(t *testing.T) {
	tests := []struct {
		phrase string
		text   string
		want   bool
	}{
		{"free nitro", "Get FREE NITRO here", true},
		{"nitro", "nitrogen is a gas", false},
		{"nitro*", "nitrogen is a gas", true},
		{"*gen", "nitrogen is a gas", true},
		{"gen", "nitrogen is a gas", false},
		{"*tro*", "nitrogen", true},
		{"scam", "a scam!", true},
		{"scam", "", false},
	}
	for _, tt := range tests {
		phrase, err := ParsePhrase(tt.phrase)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.phrase, err)
		}
		if got := phrase.MatchIn([]rune(strings.ToLower(tt.text))); got != tt.want {
			t.Fatalf("%q in %q = %v, want %v", tt.phrase, tt.text, got, tt.want)
		}
	}
}

func TestParsePhraseRejectsUnsupported(t *testing.T) {
	for _, raw := range []string{"a*b", "**a", "*", ""} {
		if _, err := ParsePhrase(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
	if got := CompilePhrases([]string{"ok", "a*b"}); len(got) != 1 {
		t.Fatalf("expected one compiled phrase, got %d", len(got))
	}
}
