// Package raidprotect detects mass mentions, blacklisted phrases and message
// spam.
package raidprotect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/clock"
	"github.com/asmejkal/DustyBot-sub000/internal/keywords"
	"github.com/asmejkal/DustyBot-sub000/internal/metrics"
	"github.com/asmejkal/DustyBot-sub000/internal/rules"
	"github.com/asmejkal/DustyBot-sub000/internal/state"
	"github.com/asmejkal/DustyBot-sub000/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Trigger describes a rule violation and the messages that caused it.
type Trigger struct {
	Type         rules.RuleType
	Rule         rules.Rule
	GuildID      string
	UserID       string
	ChannelID    string
	LogChannelID string
	Reason       string
	Offending    []state.MessageRef
	At           time.Time
}

type Module struct {
	configs  *Configs
	registry *state.Registry
	clock    clock.Clock
	logger   *zap.Logger
}

func New(configs *Configs, registry *state.Registry, clk clock.Clock, logger *zap.Logger) *Module {
	if clk == nil {
		clk = clock.Real()
	}
	return &Module{configs: configs, registry: registry, clock: clk, logger: logger}
}

// HandleMessage evaluates the rules in priority order and returns the first
// violation.
func (m *Module) HandleMessage(ctx context.Context, msg *discordgo.Message) (Trigger, bool) {
	if msg == nil || msg.GuildID == "" || msg.Author == nil || msg.Author.Bot {
		return Trigger{}, false
	}
	cfg, err := m.configs.compiled(ctx, msg.GuildID)
	if err != nil {
		m.logger.Warn("raid config unavailable", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return Trigger{}, false
	}
	if !cfg.Enabled {
		return Trigger{}, false
	}

	at := msg.Timestamp
	if at.IsZero() {
		at = m.clock.Now()
	}
	ref := state.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}

	trigger := Trigger{
		GuildID:      msg.GuildID,
		UserID:       msg.Author.ID,
		ChannelID:    msg.ChannelID,
		LogChannelID: cfg.LogChannelID,
		At:           at,
	}

	for _, t := range rules.All {
		rule := cfg.Rule(t)
		if !rule.Enabled {
			continue
		}
		var (
			reason    string
			offending []state.MessageRef
		)
		switch t {
		case rules.MassMentions:
			if n := mentionedUsers(msg); n >= rule.Threshold {
				reason = fmt.Sprintf("Mentioned %d users in one message", n)
				offending = []state.MessageRef{ref}
			}
		case rules.PhraseBlacklist:
			if phrase, ok := blacklisted(cfg.phrases, msg.Content); ok {
				reason = fmt.Sprintf("Used a blacklisted phrase (%s)", phrase.Text)
				offending = []state.MessageRef{ref}
			}
		case rules.TextSpam, rules.ImageSpam:
			if classify(msg) != t {
				continue
			}
			offending = m.checkSpam(msg.GuildID, msg.Author.ID, t, rule, at, ref)
			if offending != nil {
				reason = fmt.Sprintf("Posted %d %s in %s", len(offending), spamNoun(t), rule.Window)
			}
		}
		if offending == nil {
			continue
		}
		trigger.Type = t
		trigger.Rule = rule
		trigger.Reason = reason
		trigger.Offending = offending
		metrics.RuleTriggers.WithLabelValues(t.String()).Inc()
		return trigger, true
	}
	return Trigger{}, false
}

// checkSpam records the post and returns the whole window when the threshold
// is reached. The window is cleared afterwards.
func (m *Module) checkSpam(guildID, userID string, t rules.RuleType, rule rules.Rule, at time.Time, ref state.MessageRef) []state.MessageRef {
	var offending []state.MessageRef
	m.registry.WithUser(guildID, userID, func(u *state.UserContext) {
		posts := u.Posts(t)
		posts.Add(at, ref)
		posts.SlideWindow(rule.Window)
		if posts.Count() >= rule.Threshold {
			offending = posts.Items()
			posts.Clear()
		}
	})
	return offending
}

// classify tells image posts from text posts. A message with only
// attachments or only a link counts as an image post.
func classify(msg *discordgo.Message) rules.RuleType {
	content := strings.TrimSpace(msg.Content)
	if content == "" && len(msg.Attachments) > 0 {
		return rules.ImageSpam
	}
	if content != "" && utils.IsAbsoluteURI(content) {
		return rules.ImageSpam
	}
	return rules.TextSpam
}

func mentionedUsers(msg *discordgo.Message) int {
	seen := make(map[string]struct{})
	for _, user := range msg.Mentions {
		if user == nil || user.Bot {
			continue
		}
		seen[user.ID] = struct{}{}
	}
	return len(seen)
}

func blacklisted(phrases []rules.Phrase, content string) (rules.Phrase, bool) {
	if len(phrases) == 0 || content == "" {
		return rules.Phrase{}, false
	}
	text := keywords.Lower(content)
	for _, phrase := range phrases {
		if phrase.MatchIn(text) {
			return phrase, true
		}
	}
	return rules.Phrase{}, false
}

func spamNoun(t rules.RuleType) string {
	if t == rules.ImageSpam {
		return "images"
	}
	return "messages"
}
