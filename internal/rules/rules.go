// Package rules defines the raid protection rule kinds and their per-guild
// configuration.
package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownRule         = errors.New("unknown rule type")
	ErrInvalidRule         = errors.New("invalid rule")
	ErrUnsupportedWildcard = errors.New("only a single leading or trailing * is supported")
)

type RuleType int

const (
	MassMentions RuleType = iota
	TextSpam
	ImageSpam
	PhraseBlacklist
)

// All lists the rule types in evaluation priority order.
var All = []RuleType{MassMentions, PhraseBlacklist, TextSpam, ImageSpam}

func (t RuleType) String() string {
	switch t {
	case MassMentions:
		return "MassMentions"
	case TextSpam:
		return "TextSpam"
	case ImageSpam:
		return "ImageSpam"
	case PhraseBlacklist:
		return "PhraseBlacklist"
	default:
		return fmt.Sprintf("RuleType(%d)", int(t))
	}
}

func ParseRuleType(value string) (RuleType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "massmentions", "mass_mentions", "mentions":
		return MassMentions, nil
	case "textspam", "text_spam", "text":
		return TextSpam, nil
	case "imagespam", "image_spam", "image", "images":
		return ImageSpam, nil
	case "phraseblacklist", "phrase_blacklist", "blacklist":
		return PhraseBlacklist, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRule, value)
	}
}

// Rule is the set of knobs shared by every rule kind.
type Rule struct {
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	Threshold       int           `json:"threshold" yaml:"threshold"`
	Window          time.Duration `json:"window" yaml:"window"`
	DeleteOnTrigger bool          `json:"delete" yaml:"delete"`
	MaxOffenses     int           `json:"max_offenses" yaml:"max_offenses"`
	OffenseWindow   time.Duration `json:"offense_window" yaml:"offense_window"`
}

// Escalates reports whether offenses of this rule are counted towards a punishment.
func (r Rule) Escalates() bool {
	return r.MaxOffenses > 0 && r.OffenseWindow > 0
}

func (r Rule) validate(windowed bool) error {
	if r.Threshold < 0 || r.MaxOffenses < 0 || r.Window < 0 || r.OffenseWindow < 0 {
		return fmt.Errorf("%w: negative values are not allowed", ErrInvalidRule)
	}
	if r.Enabled && windowed {
		if r.Threshold < 1 {
			return fmt.Errorf("%w: threshold must be at least 1", ErrInvalidRule)
		}
		if r.Window <= 0 {
			return fmt.Errorf("%w: window must be positive", ErrInvalidRule)
		}
	}
	if r.MaxOffenses > 0 && r.OffenseWindow <= 0 {
		return fmt.Errorf("%w: offense window must be positive when max offenses is set", ErrInvalidRule)
	}
	return nil
}

type BlacklistRule struct {
	Rule    `yaml:",inline"`
	Phrases []string `json:"phrases" yaml:"phrases"`
}

type Config struct {
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	LogChannelID    string        `json:"log_channel_id" yaml:"log_channel_id"`
	MassMentions    Rule          `json:"mass_mentions" yaml:"mass_mentions"`
	TextSpam        Rule          `json:"text_spam" yaml:"text_spam"`
	ImageSpam       Rule          `json:"image_spam" yaml:"image_spam"`
	PhraseBlacklist BlacklistRule `json:"phrase_blacklist" yaml:"phrase_blacklist"`
}

// Rule returns the shared settings of one rule kind.
func (c Config) Rule(t RuleType) Rule {
	switch t {
	case MassMentions:
		return c.MassMentions
	case TextSpam:
		return c.TextSpam
	case ImageSpam:
		return c.ImageSpam
	case PhraseBlacklist:
		return c.PhraseBlacklist.Rule
	default:
		return Rule{}
	}
}

// SetRule replaces the shared settings of one rule kind after validating them.
func (c *Config) SetRule(t RuleType, rule Rule) error {
	if err := ValidateRule(t, rule); err != nil {
		return err
	}
	switch t {
	case MassMentions:
		c.MassMentions = rule
	case TextSpam:
		c.TextSpam = rule
	case ImageSpam:
		c.ImageSpam = rule
	case PhraseBlacklist:
		c.PhraseBlacklist.Rule = rule
	default:
		return fmt.Errorf("%w: %d", ErrUnknownRule, int(t))
	}
	return nil
}

func ValidateRule(t RuleType, rule Rule) error {
	switch t {
	case MassMentions:
		if rule.Enabled && rule.Threshold < 1 {
			return fmt.Errorf("%w: threshold must be at least 1", ErrInvalidRule)
		}
		return rule.validate(false)
	case PhraseBlacklist:
		return rule.validate(false)
	case TextSpam, ImageSpam:
		return rule.validate(true)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownRule, int(t))
	}
}

func (c Config) Validate() error {
	for _, t := range All {
		if err := ValidateRule(t, c.Rule(t)); err != nil {
			return fmt.Errorf("%s: %w", t, err)
		}
	}
	for _, phrase := range c.PhraseBlacklist.Phrases {
		if _, err := ParsePhrase(phrase); err != nil {
			return err
		}
	}
	return nil
}
