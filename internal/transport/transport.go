// Package transport wraps the outbound chat API calls used by the
// notification and raid protection pipelines.
package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/metrics"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

var (
	ErrCannotMessage      = errors.New("cannot send messages to this user")
	ErrMissingPermissions = errors.New("missing permissions")
	ErrUnknownMember      = errors.New("user is not a member of this server")
)

const (
	visibilityCacheSize = 4096
	visibilityCacheTTL  = time.Minute
)

// Transport is the set of outbound operations the core depends on.
type Transport interface {
	SendChannelEmbed(channelID string, embed *discordgo.MessageEmbed) (*discordgo.Message, error)
	DeleteMessage(channelID, messageID string) error
	SendDirectEmbed(userID string, embed *discordgo.MessageEmbed) error
	MuteUser(guildID, userID string, until time.Time, reason string) error
	FetchMember(guildID, userID string) (*discordgo.Member, error)
	CanViewChannel(userID, channelID string) (bool, error)
}

// Discord implements Transport on top of a discordgo session.
type Discord struct {
	session    *discordgo.Session
	logger     *zap.Logger
	visibility *expirable.LRU[string, bool]
}

func NewDiscord(session *discordgo.Session, logger *zap.Logger) *Discord {
	return &Discord{
		session:    session,
		logger:     logger,
		visibility: expirable.NewLRU[string, bool](visibilityCacheSize, nil, visibilityCacheTTL),
	}
}

func (d *Discord) SendChannelEmbed(channelID string, embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	msg, err := d.session.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		return nil, d.fail("send_channel_embed", err)
	}
	return msg, nil
}

func (d *Discord) DeleteMessage(channelID, messageID string) error {
	if err := d.session.ChannelMessageDelete(channelID, messageID); err != nil {
		return d.fail("delete_message", err)
	}
	return nil
}

func (d *Discord) SendDirectEmbed(userID string, embed *discordgo.MessageEmbed) error {
	channel, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return d.fail("send_direct_embed", err)
	}
	if _, err := d.session.ChannelMessageSendEmbed(channel.ID, embed); err != nil {
		return d.fail("send_direct_embed", err)
	}
	return nil
}

// MuteUser times the member out until the given time. The reason is only
// logged; the timeout endpoint takes no reason in this API version.
func (d *Discord) MuteUser(guildID, userID string, until time.Time, reason string) error {
	if err := d.session.GuildMemberTimeout(guildID, userID, &until); err != nil {
		return d.fail("mute_user", err)
	}
	d.logger.Info("member muted", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Time("until", until), zap.String("reason", reason))
	return nil
}

// FetchMember prefers the state cache and falls back to the REST API.
func (d *Discord) FetchMember(guildID, userID string) (*discordgo.Member, error) {
	if d.session.State != nil {
		if member, err := d.session.State.Member(guildID, userID); err == nil {
			return member, nil
		}
	}
	member, err := d.session.GuildMember(guildID, userID)
	if err != nil {
		return nil, d.fail("fetch_member", err)
	}
	return member, nil
}

// CanViewChannel reports whether the user may read the channel. Results are
// cached briefly since every keyword candidate asks.
func (d *Discord) CanViewChannel(userID, channelID string) (bool, error) {
	key := userID + "|" + channelID
	if visible, ok := d.visibility.Get(key); ok {
		return visible, nil
	}
	perms, err := d.session.UserChannelPermissions(userID, channelID)
	if err != nil {
		return false, d.fail("channel_permissions", err)
	}
	visible := perms&discordgo.PermissionViewChannel != 0
	d.visibility.Add(key, visible)
	return visible, nil
}

func (d *Discord) fail(op string, err error) error {
	metrics.TransportErrors.WithLabelValues(op).Inc()
	return Classify(err)
}

// Classify maps REST errors onto the package sentinels, keeping the original
// error in the chain.
func Classify(err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return err
	}
	switch restErr.Message.Code {
	case discordgo.ErrCodeCannotSendMessagesToThisUser:
		return fmt.Errorf("%w: %w", ErrCannotMessage, err)
	case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
		return fmt.Errorf("%w: %w", ErrMissingPermissions, err)
	case discordgo.ErrCodeUnknownMember:
		return fmt.Errorf("%w: %w", ErrUnknownMember, err)
	default:
		return err
	}
}
