package keywords

import "slices"

const (
	// GuildKind documents hold a guild's keywords and daily notification quota.
	GuildKind = "notify_guild"
	// UserKind documents hold a user's notification preferences. They are
	// shared by every guild.
	UserKind = "notify_user"
)

type GuildSettings struct {
	Keywords []Entry `json:"keywords"`
	Quota    Quota   `json:"quota"`
}

// Quota counts notifications per user for one UTC day.
type Quota struct {
	Date   string         `json:"date"`
	Counts map[string]int `json:"counts"`
}

// Find returns the position of a user's keyword, or -1.
func (g *GuildSettings) Find(ownerID, word string) int {
	for i, entry := range g.Keywords {
		if entry.OwnerID == ownerID && entry.Word == word {
			return i
		}
	}
	return -1
}

func (g *GuildSettings) countOwned(ownerID string) int {
	n := 0
	for _, entry := range g.Keywords {
		if entry.OwnerID == ownerID {
			n++
		}
	}
	return n
}

type UserSettings struct {
	Blocked               []string `json:"blocked"`
	IgnoredChannels       []string `json:"ignored_channels"`
	ActiveChannelDebounce bool     `json:"active_channel_debounce"`
	Paused                bool     `json:"paused"`
}

func (u UserSettings) IsBlocked(userID string) bool {
	return slices.Contains(u.Blocked, userID)
}

func (u UserSettings) IsIgnored(channelID string) bool {
	return slices.Contains(u.IgnoredChannels, channelID)
}

