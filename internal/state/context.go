// Package state holds the ephemeral per-guild and per-user runtime state used
// by raid protection.
//
// Locking: Registry, GuildContext and UserContext each have their own mutex.
// They are taken in that order when more than one is needed, and each is
// released before the next is acquired. None is held across store or
// transport calls. Empty contexts are removed in two steps: the context is
// marked dead under its own mutex, then unlinked from its parent. A caller
// that finds a dead context unlinks it and retries.
package state

import (
	"sync"
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/rules"
	"github.com/asmejkal/DustyBot-sub000/internal/window"
)

type MessageRef struct {
	ChannelID string
	MessageID string
}

type GuildContext struct {
	mu      sync.Mutex
	guildID string
	users   map[string]*UserContext
	dead    bool
}

func newGuildContext(guildID string) *GuildContext {
	return &GuildContext{guildID: guildID, users: make(map[string]*UserContext)}
}

func (g *GuildContext) GuildID() string { return g.guildID }

// user returns the live user context, creating it on demand. It reports false
// when the guild context itself has been retired.
func (g *GuildContext) user(userID string) (*UserContext, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dead {
		return nil, false
	}
	u := g.users[userID]
	if u == nil {
		u = newUserContext(g.guildID, userID)
		g.users[userID] = u
	}
	return u, true
}

func (g *GuildContext) unlinkUser(u *UserContext) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.users[u.userID] == u {
		delete(g.users, u.userID)
	}
}

func (g *GuildContext) snapshot() []*UserContext {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*UserContext, 0, len(g.users))
	for _, u := range g.users {
		out = append(out, u)
	}
	return out
}

// retireIfEmpty marks the guild dead when it has no users left.
func (g *GuildContext) retireIfEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.users) == 0 {
		g.dead = true
	}
	return g.dead
}

func (g *GuildContext) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.users)
}

// UserContext is only handed out by Registry.WithUser, which holds its mutex
// for the duration of the callback.
type UserContext struct {
	mu         sync.Mutex
	guildID    string
	userID     string
	dead       bool
	offenses   map[rules.RuleType]*window.Cache[struct{}]
	imagePosts *window.Cache[MessageRef]
	textPosts  *window.Cache[MessageRef]
}

func newUserContext(guildID, userID string) *UserContext {
	return &UserContext{
		guildID:    guildID,
		userID:     userID,
		offenses:   make(map[rules.RuleType]*window.Cache[struct{}]),
		imagePosts: window.New[MessageRef](),
		textPosts:  window.New[MessageRef](),
	}
}

func (u *UserContext) GuildID() string { return u.guildID }

func (u *UserContext) UserID() string { return u.userID }

// Offenses returns the offense cache of a rule, creating it on demand.
func (u *UserContext) Offenses(t rules.RuleType) *window.Cache[struct{}] {
	cache := u.offenses[t]
	if cache == nil {
		cache = window.New[struct{}]()
		u.offenses[t] = cache
	}
	return cache
}

// Posts returns the post cache backing a spam rule. Other rule kinds have no
// post cache and get nil.
func (u *UserContext) Posts(t rules.RuleType) *window.Cache[MessageRef] {
	switch t {
	case rules.ImageSpam:
		return u.imagePosts
	case rules.TextSpam:
		return u.textPosts
	default:
		return nil
	}
}

func (u *UserContext) slide(cfg rules.Config, reference time.Time) {
	for _, t := range []rules.RuleType{rules.TextSpam, rules.ImageSpam} {
		slideOrClear(u.Posts(t), cfg.Rule(t).Window, reference)
	}
	for t, cache := range u.offenses {
		rule := cfg.Rule(t)
		if !rule.Escalates() {
			cache.Clear()
			continue
		}
		cache.SlideWindowFrom(rule.OffenseWindow, reference)
	}
}

func (u *UserContext) empty() bool {
	if u.imagePosts.Count() > 0 || u.textPosts.Count() > 0 {
		return false
	}
	for _, cache := range u.offenses {
		if cache.Count() > 0 {
			return false
		}
	}
	return true
}

func slideOrClear[T any](cache *window.Cache[T], w time.Duration, reference time.Time) {
	if w <= 0 {
		cache.Clear()
		return
	}
	cache.SlideWindowFrom(w, reference)
}
