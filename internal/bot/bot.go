package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/analytics"
	"github.com/asmejkal/DustyBot-sub000/internal/clock"
	"github.com/asmejkal/DustyBot-sub000/internal/config"
	"github.com/asmejkal/DustyBot-sub000/internal/keywords"
	"github.com/asmejkal/DustyBot-sub000/internal/metrics"
	"github.com/asmejkal/DustyBot-sub000/internal/modules/audit"
	"github.com/asmejkal/DustyBot-sub000/internal/modules/enforcement"
	"github.com/asmejkal/DustyBot-sub000/internal/modules/raidprotect"
	"github.com/asmejkal/DustyBot-sub000/internal/notify"
	"github.com/asmejkal/DustyBot-sub000/internal/state"
	"github.com/asmejkal/DustyBot-sub000/internal/storage"
	"github.com/asmejkal/DustyBot-sub000/internal/transport"
	"github.com/asmejkal/DustyBot-sub000/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const retentionInterval = 24 * time.Hour

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	session   *discordgo.Session
	transport *transport.Discord
	registry  *state.Registry
	keywords  *keywords.Service
	prefs     *notify.Preferences
	notifier  *notify.Dispatcher
	configs   *raidprotect.Configs
	raid      *raidprotect.Module
	enforcer  *enforcement.Module
	audit     *audit.Logger
	analytics *analytics.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, analyticsEngine *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessageTyping |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	clk := clock.Real()
	tr := transport.NewDiscord(session, logger.Named("transport"))
	registry := state.NewRegistry(logger.Named("runtime"), clk, cfg.Raid.MaxProcessingDelay())
	keywordService := keywords.NewService(store, logger.Named("keywords"), cfg.Notifications.KeywordLimit)
	auditLogger := audit.NewLogger(store, logger.Named("audit"), tr)
	configs := raidprotect.NewConfigs(store, cfg.Raid.Defaults)

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		session:   session,
		transport: tr,
		registry:  registry,
		keywords:  keywordService,
		prefs:     notify.NewPreferences(store),
		notifier: notify.NewDispatcher(keywordService, store, tr, clk, logger.Named("notify"), notify.Options{
			DailyQuota:    cfg.Notifications.DailyQuota,
			DebounceDelay: cfg.Notifications.DebounceDelay(),
			PreviewLength: cfg.Notifications.PreviewLength,
			DedupeTTL:     cfg.Notifications.DedupeTTL(),
		}),
		configs: configs,
		raid:    raidprotect.New(configs, registry, clk, logger.Named("raidprotect")),
		enforcer: enforcement.New(registry, tr, auditLogger, clk, logger.Named("enforcement"), enforcement.Options{
			MuteDuration:   cfg.Raid.MuteDuration(),
			NoticeDuration: cfg.Raid.NoticeDuration(),
		}),
		audit:     auditLogger,
		analytics: analyticsEngine,
	}
	return b, nil
}

func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onTypingStart)
	b.session.AddHandler(b.onMessageReactionAdd)
	b.session.AddHandler(b.onGuildMemberRemove)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.registry.Run(ctx, b.cfg.Raid.SweepInterval(), b.cfg.Raid.CounterInterval(), b.configs.Get)
	}()
	go func() {
		defer b.wg.Done()
		b.runRetention(ctx)
	}()

	return nil
}

// Close stops the background loops, flushes pending debounced notifications
// and notice deletions, waits for in-flight work and closes the gateway
// connection.
func (b *Bot) Close(ctx context.Context) {
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		b.notifier.Flush()
		b.notifier.Wait()
		b.enforcer.Flush()
		b.enforcer.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("shutdown timed out waiting for background work")
	}

	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) runRetention(ctx context.Context) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		if err := b.store.CleanupAuditLogs(ctx, b.cfg.RetentionDays); err != nil && ctx.Err() == nil {
			b.logger.Warn("audit log cleanup failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
}

// onMessageCreate feeds the message to the keyword notifications and to raid
// protection. The two pipelines are independent; a failure in one never
// affects the other.
func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.GuildID == "" {
		return
	}
	metrics.EventsProcessed.WithLabelValues("message_create").Inc()

	if !msg.Author.Bot {
		b.notifier.HandleActivity(msg.Author.ID, msg.ChannelID)
	}

	ctx := context.Background()
	var g errgroup.Group
	g.Go(func() error {
		defer utils.Recover(b.logger, "notifications")
		b.notifier.HandleMessage(ctx, msg.Message)
		return nil
	})
	g.Go(func() error {
		defer utils.Recover(b.logger, "raid_protection")
		trigger, ok := b.raid.HandleMessage(ctx, msg.Message)
		if !ok {
			return nil
		}
		b.enforcer.Enforce(ctx, trigger)
		return nil
	})
	_ = g.Wait()
}

func (b *Bot) onTypingStart(session *discordgo.Session, event *discordgo.TypingStart) {
	if event.GuildID == "" {
		return
	}
	metrics.EventsProcessed.WithLabelValues("typing_start").Inc()
	b.notifier.HandleActivity(event.UserID, event.ChannelID)
}

func (b *Bot) onMessageReactionAdd(session *discordgo.Session, event *discordgo.MessageReactionAdd) {
	if event.MessageReaction == nil || event.GuildID == "" {
		return
	}
	metrics.EventsProcessed.WithLabelValues("reaction_add").Inc()
	b.notifier.HandleActivity(event.UserID, event.ChannelID)
}

func (b *Bot) onGuildMemberRemove(session *discordgo.Session, event *discordgo.GuildMemberRemove) {
	if event.Member == nil || event.User == nil {
		return
	}
	metrics.EventsProcessed.WithLabelValues("member_remove").Inc()
	b.registry.RemoveUser(event.GuildID, event.User.ID)
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
}

func formatReport(report analytics.Report) string {
	return fmt.Sprintf("Total: %d | INFO: %d | WARN: %d | CRIT: %d", report.Total, report.ByLevel[audit.LevelInfo], report.ByLevel[audit.LevelWarn], report.ByLevel[audit.LevelCrit])
}
