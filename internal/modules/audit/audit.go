package audit

import (
	"context"
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

const (
	ColorInfo = 0x3B82F6
	ColorWarn = 0xF97316
	ColorCrit = 0xEF4444
)

// Poster posts audit embeds to a guild's log channel.
type Poster interface {
	SendChannelEmbed(channelID string, embed *discordgo.MessageEmbed) (*discordgo.Message, error)
}

type Entry struct {
	GuildID      string
	UserID       string
	LogChannelID string
	Level        string
	Event        string
	Details      string
	Fields       []*discordgo.MessageEmbedField
}

type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	poster Poster
	now    func() time.Time
}

func NewLogger(store *storage.Store, logger *zap.Logger, poster Poster) *Logger {
	return &Logger{store: store, logger: logger, poster: poster, now: time.Now}
}

// Log persists the entry and, when the guild has a log channel, posts it
// there. Failures are logged and never returned.
func (l *Logger) Log(ctx context.Context, entry Entry) {
	createdAt := l.now()
	if l.store != nil {
		err := l.store.AddAuditLog(ctx, storage.AuditLog{
			GuildID:   entry.GuildID,
			UserID:    entry.UserID,
			Level:     entry.Level,
			Event:     entry.Event,
			Details:   entry.Details,
			CreatedAt: createdAt,
		})
		if err != nil {
			l.logger.Warn("persist audit entry failed", zap.String("guild_id", entry.GuildID), zap.Error(err))
		}
	}
	if l.poster != nil && entry.LogChannelID != "" {
		if _, err := l.poster.SendChannelEmbed(entry.LogChannelID, buildEmbed(entry, createdAt)); err != nil {
			l.logger.Warn("post audit entry failed", zap.String("guild_id", entry.GuildID), zap.String("channel_id", entry.LogChannelID), zap.Error(err))
		}
	}
	l.logger.Info("audit", zap.String("level", entry.Level), zap.String("guild_id", entry.GuildID), zap.String("user_id", entry.UserID), zap.String("event", entry.Event), zap.String("details", entry.Details))
}

func Color(level string) int {
	switch level {
	case LevelCrit:
		return ColorCrit
	case LevelWarn:
		return ColorWarn
	default:
		return ColorInfo
	}
}

func buildEmbed(entry Entry, createdAt time.Time) *discordgo.MessageEmbed {
	fields := make([]*discordgo.MessageEmbedField, 0, len(entry.Fields)+1)
	if entry.UserID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "User", Value: "<@" + entry.UserID + ">", Inline: true})
	}
	fields = append(fields, entry.Fields...)
	return &discordgo.MessageEmbed{
		Title:       entry.Event,
		Description: entry.Details,
		Color:       Color(entry.Level),
		Timestamp:   createdAt.Format(time.RFC3339),
		Fields:      fields,
		Footer:      &discordgo.MessageEmbedFooter{Text: entry.Level},
	}
}
