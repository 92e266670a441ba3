// Package enforcement turns raid protection triggers into deletions, warnings
// and mutes.
package enforcement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/clock"
	"github.com/asmejkal/DustyBot-sub000/internal/metrics"
	"github.com/asmejkal/DustyBot-sub000/internal/modules/audit"
	"github.com/asmejkal/DustyBot-sub000/internal/modules/raidprotect"
	"github.com/asmejkal/DustyBot-sub000/internal/state"
	"github.com/asmejkal/DustyBot-sub000/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const muteReason = "Raid protection: repeated violations"

type Action string

const (
	ActionWarn   Action = "warn"
	ActionPunish Action = "punish"
)

// Transport is the part of the chat API enforcement uses.
type Transport interface {
	SendChannelEmbed(channelID string, embed *discordgo.MessageEmbed) (*discordgo.Message, error)
	DeleteMessage(channelID, messageID string) error
	MuteUser(guildID, userID string, until time.Time, reason string) error
}

type Options struct {
	MuteDuration   time.Duration
	NoticeDuration time.Duration
}

type Module struct {
	registry  *state.Registry
	transport Transport
	audit     *audit.Logger
	clock     clock.Clock
	logger    *zap.Logger
	opts      Options
	notices   *clock.Group

	inflight sync.WaitGroup
}

func New(registry *state.Registry, transport Transport, auditLogger *audit.Logger, clk clock.Clock, logger *zap.Logger, opts Options) *Module {
	if opts.MuteDuration <= 0 {
		opts.MuteDuration = time.Hour
	}
	if opts.NoticeDuration <= 0 {
		opts.NoticeDuration = 8 * time.Second
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Module{registry: registry, transport: transport, audit: auditLogger, clock: clk, logger: logger, opts: opts, notices: clock.NewGroup(clk)}
}

// Enforce applies the consequences of a trigger and returns the chosen action.
func (m *Module) Enforce(ctx context.Context, trigger raidprotect.Trigger) Action {
	logger := m.logger.With(zap.String("guild_id", trigger.GuildID), zap.String("user_id", trigger.UserID), zap.String("rule", trigger.Type.String()))

	if trigger.Rule.DeleteOnTrigger {
		m.deleteAll(logger, trigger.Offending)
	}

	action := ActionWarn
	if trigger.Rule.Escalates() {
		now := m.clock.Now()
		m.registry.WithUser(trigger.GuildID, trigger.UserID, func(u *state.UserContext) {
			offenses := u.Offenses(trigger.Type)
			offenses.Add(now, struct{}{})
			offenses.SlideWindow(trigger.Rule.OffenseWindow)
			if offenses.Count() >= trigger.Rule.MaxOffenses {
				offenses.Clear()
				action = ActionPunish
			}
		})
	}
	metrics.Enforcements.WithLabelValues(trigger.Type.String(), string(action)).Inc()

	if action == ActionPunish {
		until := m.clock.Now().Add(m.opts.MuteDuration)
		if err := m.transport.MuteUser(trigger.GuildID, trigger.UserID, until, muteReason); err != nil {
			logger.Warn("mute failed", zap.Error(err))
		}
	}

	m.postNotice(logger, trigger, action)

	level := audit.LevelWarn
	if action == ActionPunish {
		level = audit.LevelCrit
	}
	m.audit.Log(ctx, audit.Entry{
		GuildID:      trigger.GuildID,
		UserID:       trigger.UserID,
		LogChannelID: trigger.LogChannelID,
		Level:        level,
		Event:        trigger.Type.String(),
		Details:      trigger.Reason,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Action", Value: actionLabel(action, m.opts.MuteDuration), Inline: true},
			{Name: "Channel", Value: "<#" + trigger.ChannelID + ">", Inline: true},
			{Name: "Messages", Value: fmt.Sprintf("%d", len(trigger.Offending)), Inline: true},
		},
	})
	return action
}

// Wait blocks until background deletions have finished.
func (m *Module) Wait() {
	m.inflight.Wait()
}

// Flush deletes the enforcement notices that are still showing.
func (m *Module) Flush() {
	m.notices.Flush()
}

func (m *Module) deleteAll(logger *zap.Logger, refs []state.MessageRef) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		defer utils.Recover(m.logger, "enforcement_delete")
		for _, ref := range refs {
			if err := m.transport.DeleteMessage(ref.ChannelID, ref.MessageID); err != nil {
				logger.Info("delete offending message failed", zap.String("message_id", ref.MessageID), zap.Error(err))
			}
		}
	}()
}

// postNotice posts a short-lived notice in the channel of the violation.
func (m *Module) postNotice(logger *zap.Logger, trigger raidprotect.Trigger, action Action) {
	embed := &discordgo.MessageEmbed{
		Description: noticeText(trigger, action, m.opts.MuteDuration),
		Color:       audit.ColorWarn,
	}
	if action == ActionPunish {
		embed.Color = audit.ColorCrit
	}
	msg, err := m.transport.SendChannelEmbed(trigger.ChannelID, embed)
	if err != nil {
		logger.Info("post enforcement notice failed", zap.Error(err))
		return
	}
	m.notices.AfterFunc(m.opts.NoticeDuration, func() {
		defer utils.Recover(m.logger, "enforcement_notice")
		if err := m.transport.DeleteMessage(msg.ChannelID, msg.ID); err != nil {
			logger.Debug("delete enforcement notice failed", zap.Error(err))
		}
	})
}

func noticeText(trigger raidprotect.Trigger, action Action, mute time.Duration) string {
	if action == ActionPunish {
		return fmt.Sprintf("<@%s> has been muted for %s. %s.", trigger.UserID, mute, trigger.Reason)
	}
	return fmt.Sprintf("<@%s>, please stop. %s.", trigger.UserID, trigger.Reason)
}

func actionLabel(action Action, mute time.Duration) string {
	if action == ActionPunish {
		return "Muted for " + mute.String()
	}
	return "Warned"
}
