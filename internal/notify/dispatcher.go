// Package notify delivers keyword notifications as direct messages.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/clock"
	"github.com/asmejkal/DustyBot-sub000/internal/keywords"
	"github.com/asmejkal/DustyBot-sub000/internal/metrics"
	"github.com/asmejkal/DustyBot-sub000/internal/storage"
	"github.com/asmejkal/DustyBot-sub000/internal/transport"
	"github.com/asmejkal/DustyBot-sub000/internal/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	notificationColor = 0x3B82F6
	quotaColor        = 0xF59E0B
	notifiedCacheSize = 16384
)

// Sender is the part of the transport the dispatcher needs.
type Sender interface {
	FetchMember(guildID, userID string) (*discordgo.Member, error)
	CanViewChannel(userID, channelID string) (bool, error)
	SendDirectEmbed(userID string, embed *discordgo.MessageEmbed) error
}

// Indexer resolves the keyword index of a guild.
type Indexer interface {
	Index(ctx context.Context, guildID string) (*keywords.Index, error)
}

type Options struct {
	DailyQuota    int
	DebounceDelay time.Duration
	PreviewLength int
	DedupeTTL     time.Duration
}

type Dispatcher struct {
	index   Indexer
	store   *storage.Store
	sender  Sender
	clock   clock.Clock
	logger  *zap.Logger
	opts    Options
	pending *Pending
	timers  *clock.Group

	notifiedMu sync.Mutex
	notified   *expirable.LRU[string, struct{}]

	inflight sync.WaitGroup
}

func NewDispatcher(index Indexer, store *storage.Store, sender Sender, clk clock.Clock, logger *zap.Logger, opts Options) *Dispatcher {
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = 8 * time.Second
	}
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = 400
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = 10 * time.Minute
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Dispatcher{
		index:    index,
		store:    store,
		sender:   sender,
		clock:    clk,
		logger:   logger,
		opts:     opts,
		pending:  NewPending(),
		timers:   clock.NewGroup(clk),
		notified: expirable.NewLRU[string, struct{}](notifiedCacheSize, nil, opts.DedupeTTL),
	}
}

// HandleMessage matches the message against the guild's keywords and starts a
// delivery for every target that qualifies. Deliveries run in the background.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg *discordgo.Message) {
	if msg == nil || msg.GuildID == "" || msg.Author == nil || msg.Author.Bot || msg.Content == "" {
		return
	}
	ix, err := d.index.Index(ctx, msg.GuildID)
	if err != nil {
		d.logger.Warn("keyword index unavailable", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return
	}
	if ix.Len() == 0 {
		return
	}

	text := keywords.Lower(msg.Content)
	for _, match := range ix.Match(text) {
		target := match.Entry.OwnerID
		if !match.Whole(text) || target == msg.Author.ID {
			continue
		}
		if d.notifiedAlready(msg.ID, target) {
			continue
		}
		if !d.canReceive(msg, target) {
			continue
		}
		if !d.markNotified(msg.ID, target) {
			continue
		}

		metrics.KeywordMatches.Inc()
		d.inflight.Add(1)
		go d.deliver(context.WithoutCancel(ctx), msg, match.Entry)
	}
}

// HandleActivity cancels the debounced notifications of a user who shows up
// in the channel.
func (d *Dispatcher) HandleActivity(userID, channelID string) {
	if n := d.pending.ClearChannel(userID, channelID); n > 0 {
		metrics.NotificationsSkipped.WithLabelValues("active").Add(float64(n))
	}
}

// Wait blocks until every started delivery has either finished or been
// scheduled for after the debounce delay.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Flush sends the debounced notifications that are still pending instead of
// waiting for their delay. Used on shutdown.
func (d *Dispatcher) Flush() {
	d.timers.Flush()
}

// canReceive resolves the target and checks that they can read the channel.
// Lookup errors are not remembered, so a re-delivered message is checked again.
func (d *Dispatcher) canReceive(msg *discordgo.Message, target string) bool {
	if _, err := d.sender.FetchMember(msg.GuildID, target); err != nil {
		if errors.Is(err, transport.ErrUnknownMember) {
			metrics.NotificationsSkipped.WithLabelValues("not_member").Inc()
		} else {
			d.logger.Debug("resolve notification target failed", zap.String("guild_id", msg.GuildID), zap.String("user_id", target), zap.Error(err))
		}
		return false
	}
	visible, err := d.sender.CanViewChannel(target, msg.ChannelID)
	if err != nil {
		d.logger.Debug("channel visibility check failed", zap.String("user_id", target), zap.String("channel_id", msg.ChannelID), zap.Error(err))
		return false
	}
	if !visible {
		metrics.NotificationsSkipped.WithLabelValues("hidden").Inc()
		return false
	}
	return true
}

func (d *Dispatcher) notifiedAlready(messageID, userID string) bool {
	d.notifiedMu.Lock()
	defer d.notifiedMu.Unlock()
	return d.notified.Contains(messageID + "|" + userID)
}

// markNotified claims the (message, target) pair and reports whether this
// call was the first.
func (d *Dispatcher) markNotified(messageID, userID string) bool {
	key := messageID + "|" + userID
	d.notifiedMu.Lock()
	defer d.notifiedMu.Unlock()
	if d.notified.Contains(key) {
		return false
	}
	d.notified.Add(key, struct{}{})
	return true
}

func (d *Dispatcher) deliver(ctx context.Context, msg *discordgo.Message, entry keywords.Entry) {
	defer d.inflight.Done()
	defer utils.Recover(d.logger, "notify")

	target := entry.OwnerID
	logger := d.logger.With(zap.String("guild_id", msg.GuildID), zap.String("user_id", target), zap.String("message_id", msg.ID))

	prefs, err := storage.Read[keywords.UserSettings](ctx, d.store, keywords.UserKind, target)
	if err != nil {
		logger.Warn("read notification preferences failed", zap.Error(err))
		return
	}
	if prefs.IsBlocked(msg.Author.ID) {
		metrics.NotificationsSkipped.WithLabelValues("blocked").Inc()
		return
	}
	if prefs.IsIgnored(msg.ChannelID) {
		metrics.NotificationsSkipped.WithLabelValues("ignored").Inc()
		return
	}

	var removed, reached, suppressed bool
	err = storage.Modify(ctx, d.store, keywords.GuildKind, msg.GuildID, func(doc *keywords.GuildSettings) error {
		i := doc.Find(target, entry.Word)
		if i < 0 {
			removed = true
			return storage.ErrNoChange
		}
		doc.Keywords[i].Triggered++
		reached, suppressed = consume(&doc.Quota, target, d.clock.Now(), d.opts.DailyQuota)
		return nil
	})
	if err != nil {
		logger.Warn("update notification counters failed", zap.Error(err))
		return
	}
	if removed {
		metrics.NotificationsSkipped.WithLabelValues("removed").Inc()
		return
	}
	if suppressed {
		metrics.NotificationsSkipped.WithLabelValues("quota").Inc()
		return
	}

	if !prefs.ActiveChannelDebounce {
		d.send(logger, msg, entry, reached)
		return
	}

	d.pending.Add(target, msg.ChannelID, msg.ID)
	d.timers.AfterFunc(d.opts.DebounceDelay, func() {
		defer utils.Recover(d.logger, "notify_debounce")
		if !d.pending.Claim(target, msg.ChannelID, msg.ID) {
			return
		}
		d.send(logger, msg, entry, reached)
	})
}

func (d *Dispatcher) send(logger *zap.Logger, msg *discordgo.Message, entry keywords.Entry, quotaReached bool) {
	if err := d.sender.SendDirectEmbed(entry.OwnerID, d.notificationEmbed(msg, entry)); err != nil {
		if errors.Is(err, transport.ErrCannotMessage) {
			logger.Info("cannot message notification target")
		} else {
			logger.Warn("send notification failed", zap.Error(err))
		}
		return
	}
	metrics.NotificationsDelivered.WithLabelValues("keyword").Inc()

	if !quotaReached {
		return
	}
	if err := d.sender.SendDirectEmbed(entry.OwnerID, d.quotaEmbed()); err != nil {
		logger.Info("send quota warning failed", zap.Error(err))
		return
	}
	metrics.NotificationsDelivered.WithLabelValues("quota_warning").Inc()
}

func (d *Dispatcher) notificationEmbed(msg *discordgo.Message, entry keywords.Entry) *discordgo.MessageEmbed {
	author := msg.Author.Username
	if msg.Member != nil && msg.Member.Nick != "" {
		author = msg.Member.Nick
	}
	return &discordgo.MessageEmbed{
		Title:       "Keyword mentioned by " + author,
		Description: utils.Truncate(msg.Content, d.opts.PreviewLength),
		Color:       notificationColor,
		Timestamp:   d.clock.Now().Format(time.RFC3339),
		Author: &discordgo.MessageEmbedAuthor{
			Name:    author,
			IconURL: msg.Author.AvatarURL(""),
		},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Keyword", Value: entry.Original, Inline: true},
			{Name: "Channel", Value: "<#" + msg.ChannelID + ">", Inline: true},
			{Name: "Link", Value: "[Jump to message](" + utils.MessageLink(msg.GuildID, msg.ChannelID, msg.ID) + ")", Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Use /notify to manage notification settings"},
	}
}

func (d *Dispatcher) quotaEmbed() *discordgo.MessageEmbed {
	left := untilReset(d.clock.Now()).Truncate(time.Minute)
	return &discordgo.MessageEmbed{
		Title: "Daily notification limit reached",
		Description: fmt.Sprintf("You have received %d notifications from this server today. "+
			"You will not receive more until the limit resets in %s.", d.opts.DailyQuota, formatDuration(left)),
		Color:     quotaColor,
		Timestamp: d.clock.Now().Format(time.RFC3339),
	}
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
