package raidprotect

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/rules"
	"github.com/asmejkal/DustyBot-sub000/internal/storage"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	configKind      = "raid_config"
	configCacheSize = 1024
	configCacheTTL  = time.Minute
)

type document struct {
	Set    bool         `json:"set"`
	Config rules.Config `json:"config"`
}

// guildConfig is a cached configuration with its blacklist compiled.
type guildConfig struct {
	rules.Config
	phrases []rules.Phrase
}

// Configs stores the per-guild raid protection settings. Guilds that never
// changed anything get the defaults.
type Configs struct {
	store    *storage.Store
	defaults rules.Config
	cache    *expirable.LRU[string, guildConfig]
}

func NewConfigs(store *storage.Store, defaults rules.Config) *Configs {
	return &Configs{
		store:    store,
		defaults: defaults,
		cache:    expirable.NewLRU[string, guildConfig](configCacheSize, nil, configCacheTTL),
	}
}

// Get returns the guild's configuration.
func (c *Configs) Get(ctx context.Context, guildID string) (rules.Config, error) {
	cfg, err := c.compiled(ctx, guildID)
	if err != nil {
		return rules.Config{}, err
	}
	return cfg.Config, nil
}

func (c *Configs) compiled(ctx context.Context, guildID string) (guildConfig, error) {
	if cfg, ok := c.cache.Get(guildID); ok {
		return cfg, nil
	}
	doc, err := storage.Read[document](ctx, c.store, configKind, guildID)
	if err != nil {
		return guildConfig{}, err
	}
	cfg := c.resolve(doc)
	compiled := guildConfig{Config: cfg, phrases: rules.CompilePhrases(cfg.PhraseBlacklist.Phrases)}
	c.cache.Add(guildID, compiled)
	return compiled, nil
}

func (c *Configs) resolve(doc document) rules.Config {
	if !doc.Set {
		cfg := c.defaults
		cfg.PhraseBlacklist.Phrases = slices.Clone(c.defaults.PhraseBlacklist.Phrases)
		return cfg
	}
	return doc.Config
}

func (c *Configs) modify(ctx context.Context, guildID string, fn func(cfg *rules.Config) error) error {
	err := storage.Modify(ctx, c.store, configKind, guildID, func(doc *document) error {
		cfg := c.resolve(*doc)
		if err := fn(&cfg); err != nil {
			return err
		}
		doc.Set = true
		doc.Config = cfg
		return nil
	})
	c.cache.Remove(guildID)
	return err
}

func (c *Configs) SetEnabled(ctx context.Context, guildID string, enabled bool) error {
	return c.modify(ctx, guildID, func(cfg *rules.Config) error {
		cfg.Enabled = enabled
		return nil
	})
}

func (c *Configs) SetLogChannel(ctx context.Context, guildID, channelID string) error {
	return c.modify(ctx, guildID, func(cfg *rules.Config) error {
		cfg.LogChannelID = channelID
		return nil
	})
}

// UpdateRule applies fn to the stored settings of one rule inside the same
// read-modify-write, so concurrent updates of different fields both land.
func (c *Configs) UpdateRule(ctx context.Context, guildID string, t rules.RuleType, fn func(rule *rules.Rule)) (rules.Rule, error) {
	var updated rules.Rule
	err := c.modify(ctx, guildID, func(cfg *rules.Config) error {
		rule := cfg.Rule(t)
		fn(&rule)
		if err := cfg.SetRule(t, rule); err != nil {
			return err
		}
		updated = rule
		return nil
	})
	if err != nil {
		return rules.Rule{}, err
	}
	return updated, nil
}

// AddPhrase appends a blacklist phrase. Adding an existing phrase is a no-op.
func (c *Configs) AddPhrase(ctx context.Context, guildID, phrase string) error {
	parsed, err := rules.ParsePhrase(phrase)
	if err != nil {
		return err
	}
	return c.modify(ctx, guildID, func(cfg *rules.Config) error {
		for _, existing := range cfg.PhraseBlacklist.Phrases {
			if strings.EqualFold(existing, parsed.Text) {
				return storage.ErrNoChange
			}
		}
		cfg.PhraseBlacklist.Phrases = append(cfg.PhraseBlacklist.Phrases, parsed.Text)
		return nil
	})
}

// RemovePhrase reports whether the phrase was on the blacklist.
func (c *Configs) RemovePhrase(ctx context.Context, guildID, phrase string) (bool, error) {
	phrase = strings.TrimSpace(phrase)
	removed := false
	err := c.modify(ctx, guildID, func(cfg *rules.Config) error {
		i := slices.IndexFunc(cfg.PhraseBlacklist.Phrases, func(existing string) bool {
			return strings.EqualFold(existing, phrase)
		})
		if i < 0 {
			return storage.ErrNoChange
		}
		cfg.PhraseBlacklist.Phrases = slices.Delete(cfg.PhraseBlacklist.Phrases, i, i+1)
		removed = true
		return nil
	})
	return removed, err
}

// Reset drops the guild's settings so the defaults apply again.
func (c *Configs) Reset(ctx context.Context, guildID string) error {
	defer c.cache.Remove(guildID)
	if err := storage.Delete(ctx, c.store, configKind, guildID); err != nil {
		return fmt.Errorf("reset raid config: %w", err)
	}
	return nil
}
