package transport

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

var errLookup = errors.New("lookup unavailable")

type SentEmbed struct {
	ChannelID string
	Embed     *discordgo.MessageEmbed
}

type Mute struct {
	GuildID string
	UserID  string
	Until   time.Time
	Reason  string
}

// Fake records outbound calls in memory. Hidden holds "userID|channelID"
// pairs that CanViewChannel denies, Departed holds "guildID|userID" pairs
// that FetchMember reports as ErrUnknownMember, and Undeliverable holds users
// whose direct messages fail with ErrCannotMessage. FailLookups makes both
// lookups fail with a transient error.
type Fake struct {
	mu            sync.Mutex
	nextID        int
	Channel       []SentEmbed
	Direct        map[string][]*discordgo.MessageEmbed
	Deleted       []string
	Mutes         []Mute
	Hidden        map[string]bool
	Departed      map[string]bool
	Undeliverable map[string]bool
	FailDeletes   bool
	FailLookups   bool
}

func NewFake() *Fake {
	return &Fake{
		Direct:        make(map[string][]*discordgo.MessageEmbed),
		Hidden:        make(map[string]bool),
		Departed:      make(map[string]bool),
		Undeliverable: make(map[string]bool),
	}
}

func (f *Fake) SendChannelEmbed(channelID string, embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.Channel = append(f.Channel, SentEmbed{ChannelID: channelID, Embed: embed})
	return &discordgo.Message{ID: "sent-" + strconv.Itoa(f.nextID), ChannelID: channelID}, nil
}

func (f *Fake) DeleteMessage(channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDeletes {
		return ErrMissingPermissions
	}
	f.Deleted = append(f.Deleted, channelID+"/"+messageID)
	return nil
}

func (f *Fake) SendDirectEmbed(userID string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Undeliverable[userID] {
		return ErrCannotMessage
	}
	f.Direct[userID] = append(f.Direct[userID], embed)
	return nil
}

func (f *Fake) MuteUser(guildID, userID string, until time.Time, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Mutes = append(f.Mutes, Mute{GuildID: guildID, UserID: userID, Until: until, Reason: reason})
	return nil
}

func (f *Fake) FetchMember(guildID, userID string) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailLookups {
		return nil, errLookup
	}
	if f.Departed[guildID+"|"+userID] {
		return nil, ErrUnknownMember
	}
	return &discordgo.Member{GuildID: guildID, User: &discordgo.User{ID: userID, Username: userID}}, nil
}

func (f *Fake) CanViewChannel(userID, channelID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailLookups {
		return false, errLookup
	}
	return !f.Hidden[userID+"|"+channelID], nil
}

// DirectCount returns the number of direct messages sent to a user.
func (f *Fake) DirectCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Direct[userID])
}

// ChannelEmbeds returns a copy of the embeds posted to a channel.
func (f *Fake) ChannelEmbeds(channelID string) []*discordgo.MessageEmbed {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.MessageEmbed
	for _, sent := range f.Channel {
		if sent.ChannelID == channelID {
			out = append(out, sent.Embed)
		}
	}
	return out
}

func (f *Fake) DeletedMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Deleted...)
}

func (f *Fake) MuteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Mutes)
}
