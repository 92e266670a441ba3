package notify

import (
	"context"
	"errors"
	"slices"

	"github.com/asmejkal/DustyBot-sub000/internal/keywords"
	"github.com/asmejkal/DustyBot-sub000/internal/storage"
)

var ErrBlockSelf = errors.New("you cannot block yourself")

// Preferences edits the per-user notification settings. They apply to every
// guild. Each mutator reports whether anything changed.
type Preferences struct {
	store *storage.Store
}

func NewPreferences(store *storage.Store) *Preferences {
	return &Preferences{store: store}
}

func (p *Preferences) Get(ctx context.Context, userID string) (keywords.UserSettings, error) {
	return storage.Read[keywords.UserSettings](ctx, p.store, keywords.UserKind, userID)
}

func (p *Preferences) Block(ctx context.Context, userID, authorID string) (bool, error) {
	if userID == authorID {
		return false, ErrBlockSelf
	}
	return p.modify(ctx, userID, func(doc *keywords.UserSettings) bool {
		return addUnique(&doc.Blocked, authorID)
	})
}

func (p *Preferences) Unblock(ctx context.Context, userID, authorID string) (bool, error) {
	return p.modify(ctx, userID, func(doc *keywords.UserSettings) bool {
		return remove(&doc.Blocked, authorID)
	})
}

func (p *Preferences) IgnoreChannel(ctx context.Context, userID, channelID string) (bool, error) {
	return p.modify(ctx, userID, func(doc *keywords.UserSettings) bool {
		return addUnique(&doc.IgnoredChannels, channelID)
	})
}

func (p *Preferences) UnignoreChannel(ctx context.Context, userID, channelID string) (bool, error) {
	return p.modify(ctx, userID, func(doc *keywords.UserSettings) bool {
		return remove(&doc.IgnoredChannels, channelID)
	})
}

// SetActiveChannelDebounce toggles the delay that lets the user cancel a
// notification by being active in the channel.
func (p *Preferences) SetActiveChannelDebounce(ctx context.Context, userID string, enabled bool) (bool, error) {
	return p.modify(ctx, userID, func(doc *keywords.UserSettings) bool {
		if doc.ActiveChannelDebounce == enabled {
			return false
		}
		doc.ActiveChannelDebounce = enabled
		return true
	})
}

func (p *Preferences) modify(ctx context.Context, userID string, fn func(doc *keywords.UserSettings) bool) (bool, error) {
	changed := false
	err := storage.Modify(ctx, p.store, keywords.UserKind, userID, func(doc *keywords.UserSettings) error {
		if changed = fn(doc); !changed {
			return storage.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func addUnique(values *[]string, value string) bool {
	if slices.Contains(*values, value) {
		return false
	}
	*values = append(*values, value)
	return true
}

func remove(values *[]string, value string) bool {
	i := slices.Index(*values, value)
	if i < 0 {
		return false
	}
	*values = slices.Delete(*values, i, i+1)
	return true
}
