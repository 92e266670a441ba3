package state

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/clock"
	"github.com/asmejkal/DustyBot-sub000/internal/metrics"
	"github.com/asmejkal/DustyBot-sub000/internal/rules"

	"go.uber.org/zap"
)

// ConfigSource resolves the raid protection configuration of a guild.
type ConfigSource func(ctx context.Context, guildID string) (rules.Config, error)

type Stats struct {
	Guilds int
	Users  int
}

type Registry struct {
	mu       sync.Mutex
	guilds   map[string]*GuildContext
	sweeping atomic.Bool
	clock    clock.Clock
	logger   *zap.Logger

	// maxProcessingDelay is subtracted from the sweep reference time so that
	// events still being processed are not evicted early.
	maxProcessingDelay time.Duration
}

func NewRegistry(logger *zap.Logger, clk clock.Clock, maxProcessingDelay time.Duration) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	return &Registry{
		guilds:             make(map[string]*GuildContext),
		clock:              clk,
		logger:             logger,
		maxProcessingDelay: maxProcessingDelay,
	}
}

func (r *Registry) guild(guildID string) *GuildContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.guilds[guildID]
	if g == nil {
		g = newGuildContext(guildID)
		r.guilds[guildID] = g
	}
	return g
}

func (r *Registry) unlinkGuild(g *GuildContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.guilds[g.guildID] == g {
		delete(r.guilds, g.guildID)
	}
}

func (r *Registry) snapshot() []*GuildContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*GuildContext, 0, len(r.guilds))
	for _, g := range r.guilds {
		out = append(out, g)
	}
	return out
}

// WithUser runs fn while holding the user's context mutex. fn must not block
// on I/O.
func (r *Registry) WithUser(guildID, userID string, fn func(u *UserContext)) {
	for {
		g := r.guild(guildID)
		u, ok := g.user(userID)
		if !ok {
			r.unlinkGuild(g)
			continue
		}
		u.mu.Lock()
		if u.dead {
			u.mu.Unlock()
			g.unlinkUser(u)
			continue
		}
		fn(u)
		u.mu.Unlock()
		return
	}
}

// RemoveUser drops the runtime state of a user, e.g. after they left the guild.
func (r *Registry) RemoveUser(guildID, userID string) {
	r.mu.Lock()
	g := r.guilds[guildID]
	r.mu.Unlock()
	if g == nil {
		return
	}

	g.mu.Lock()
	u := g.users[userID]
	g.mu.Unlock()
	if u == nil {
		return
	}

	u.mu.Lock()
	u.dead = true
	u.mu.Unlock()
	g.unlinkUser(u)
}

// Sweep slides every cache to its configured window and drops empty contexts.
// Concurrent calls return immediately while a sweep is running.
func (r *Registry) Sweep(ctx context.Context, configFor ConfigSource) {
	if !r.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer r.sweeping.Store(false)

	started := time.Now()
	reference := r.clock.Now().Add(-r.maxProcessingDelay)
	removedUsers, removedGuilds := 0, 0

	for _, g := range r.snapshot() {
		cfg, err := configFor(ctx, g.guildID)
		if err != nil {
			r.logger.Warn("sweep config lookup failed", zap.String("guild_id", g.guildID), zap.Error(err))
			continue
		}

		for _, u := range g.snapshot() {
			u.mu.Lock()
			u.slide(cfg, reference)
			if u.empty() {
				u.dead = true
			}
			dead := u.dead
			u.mu.Unlock()
			if dead {
				g.unlinkUser(u)
				removedUsers++
			}
		}

		if g.retireIfEmpty() {
			r.unlinkGuild(g)
			removedGuilds++
		}
	}

	metrics.SweepDuration.Observe(time.Since(started).Seconds())
	r.logger.Debug("runtime context sweep", zap.Int("removed_users", removedUsers), zap.Int("removed_guilds", removedGuilds))
}

func (r *Registry) Stats() Stats {
	var stats Stats
	for _, g := range r.snapshot() {
		stats.Guilds++
		stats.Users += g.size()
	}
	return stats
}

// Run sweeps every sweepInterval and reports context counts every
// counterInterval until ctx is done.
func (r *Registry) Run(ctx context.Context, sweepInterval, counterInterval time.Duration, configFor ConfigSource) {
	if sweepInterval <= 0 {
		sweepInterval = 2 * time.Minute
	}
	if counterInterval <= 0 {
		counterInterval = 30 * time.Minute
	}
	sweepTicker := time.NewTicker(sweepInterval)
	defer sweepTicker.Stop()
	counterTicker := time.NewTicker(counterInterval)
	defer counterTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			go r.Sweep(ctx, configFor)
		case <-counterTicker.C:
			r.reportStats()
		}
	}
}

func (r *Registry) reportStats() {
	stats := r.Stats()
	metrics.GuildContexts.Set(float64(stats.Guilds))
	metrics.UserContexts.Set(float64(stats.Users))
	r.logger.Info("runtime contexts", zap.Int("guilds", stats.Guilds), zap.Int("users", stats.Users))
}
