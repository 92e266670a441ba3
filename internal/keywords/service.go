package keywords

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/asmejkal/DustyBot-sub000/internal/metrics"
	"github.com/asmejkal/DustyBot-sub000/internal/storage"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

const maxKeywordLength = 100

var (
	ErrInvalidKeyword   = errors.New("invalid keyword")
	ErrDuplicateKeyword = errors.New("keyword already added")
	ErrKeywordLimit     = errors.New("keyword limit reached")
	ErrKeywordNotFound  = errors.New("keyword not found")
)

// Service owns the keyword collections and the cached index of every guild.
// Cached indexes are immutable and replaced wholesale after each mutation.
type Service struct {
	store  *storage.Store
	logger *zap.Logger
	limit  int

	indexes  *xsync.MapOf[string, *Index]
	rebuilds *xsync.MapOf[string, *sync.Mutex]

	// epoch counts committed mutations. Lazy builds store their result only
	// if no mutation committed while they were reading.
	epochMu sync.RWMutex
	epoch   uint64

	// afterLazyBuild runs between a lazy build and its store; tests use it to
	// interleave mutations.
	afterLazyBuild func(guildID string)
}

func NewService(store *storage.Store, logger *zap.Logger, limitPerUser int) *Service {
	return &Service{
		store:    store,
		logger:   logger,
		limit:    limitPerUser,
		indexes:  xsync.NewMapOf[string, *Index](),
		rebuilds: xsync.NewMapOf[string, *sync.Mutex](),
	}
}

// Index returns the guild's current index, building it on first use.
func (s *Service) Index(ctx context.Context, guildID string) (*Index, error) {
	if ix, ok := s.indexes.Load(guildID); ok {
		return ix, nil
	}
	s.epochMu.RLock()
	epoch := s.epoch
	s.epochMu.RUnlock()

	ix, err := s.build(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if s.afterLazyBuild != nil {
		s.afterLazyBuild(guildID)
	}

	// The check and the store happen under the read lock, so a concurrent
	// bump either sees the stored index or makes the check fail.
	s.epochMu.RLock()
	defer s.epochMu.RUnlock()
	if s.epoch == epoch {
		ix, _ = s.indexes.LoadOrStore(guildID, ix)
	}
	return ix, nil
}

func (s *Service) bumpEpoch() {
	s.epochMu.Lock()
	s.epoch++
	s.epochMu.Unlock()
}

func (s *Service) build(ctx context.Context, guildID string) (*Index, error) {
	settings, err := storage.Read[GuildSettings](ctx, s.store, GuildKind, guildID)
	if err != nil {
		return nil, err
	}

	paused := make(map[string]bool)
	for _, entry := range settings.Keywords {
		if _, seen := paused[entry.OwnerID]; seen {
			continue
		}
		prefs, err := storage.Read[UserSettings](ctx, s.store, UserKind, entry.OwnerID)
		if err != nil {
			return nil, err
		}
		paused[entry.OwnerID] = prefs.Paused
	}

	active := make([]Entry, 0, len(settings.Keywords))
	for _, entry := range settings.Keywords {
		if !paused[entry.OwnerID] {
			active = append(active, entry)
		}
	}
	metrics.KeywordIndexBuilds.Inc()
	return Build(active), nil
}

// rebuild replaces the cached index after a committed mutation. Rebuilds of
// one guild are serialised so an older build never overwrites a newer one.
func (s *Service) rebuild(ctx context.Context, guildID string) error {
	s.bumpEpoch()
	mu, _ := s.rebuilds.LoadOrStore(guildID, &sync.Mutex{})
	mu.Lock()
	defer mu.Unlock()

	ix, err := s.build(ctx, guildID)
	if err != nil {
		s.indexes.Delete(guildID)
		s.logger.Warn("keyword index rebuild failed", zap.String("guild_id", guildID), zap.Error(err))
		return err
	}
	s.indexes.Store(guildID, ix)
	return nil
}

func validate(word string) (string, error) {
	trimmed := strings.TrimSpace(word)
	if trimmed == "" {
		return "", fmt.Errorf("%w: keyword is empty", ErrInvalidKeyword)
	}
	if utf8.RuneCountInString(trimmed) > maxKeywordLength {
		return "", fmt.Errorf("%w: keyword is longer than %d characters", ErrInvalidKeyword, maxKeywordLength)
	}
	if strings.ContainsAny(trimmed, "\r\n") {
		return "", fmt.Errorf("%w: keyword spans multiple lines", ErrInvalidKeyword)
	}
	return trimmed, nil
}

func (s *Service) Add(ctx context.Context, guildID, userID, word string) error {
	original, err := validate(word)
	if err != nil {
		return err
	}
	lowered := Normalize(original)

	err = storage.Modify(ctx, s.store, GuildKind, guildID, func(doc *GuildSettings) error {
		if doc.Find(userID, lowered) >= 0 {
			return ErrDuplicateKeyword
		}
		if s.limit > 0 && doc.countOwned(userID) >= s.limit {
			return fmt.Errorf("%w: at most %d keywords per user", ErrKeywordLimit, s.limit)
		}
		doc.Keywords = append(doc.Keywords, Entry{OwnerID: userID, Word: lowered, Original: original})
		return nil
	})
	if err != nil {
		return err
	}
	return s.rebuild(ctx, guildID)
}

func (s *Service) Remove(ctx context.Context, guildID, userID, word string) error {
	lowered := Normalize(word)
	err := storage.Modify(ctx, s.store, GuildKind, guildID, func(doc *GuildSettings) error {
		i := doc.Find(userID, lowered)
		if i < 0 {
			return ErrKeywordNotFound
		}
		doc.Keywords = append(doc.Keywords[:i], doc.Keywords[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}
	return s.rebuild(ctx, guildID)
}

// Clear removes every keyword the user has in the guild and reports how many
// were removed.
func (s *Service) Clear(ctx context.Context, guildID, userID string) (int, error) {
	removed := 0
	err := storage.Modify(ctx, s.store, GuildKind, guildID, func(doc *GuildSettings) error {
		kept := doc.Keywords[:0]
		for _, entry := range doc.Keywords {
			if entry.OwnerID == userID {
				removed++
				continue
			}
			kept = append(kept, entry)
		}
		if removed == 0 {
			return storage.ErrNoChange
		}
		doc.Keywords = kept
		return nil
	})
	if err != nil || removed == 0 {
		return 0, err
	}
	return removed, s.rebuild(ctx, guildID)
}

// List returns the user's keywords in the guild, alphabetically.
func (s *Service) List(ctx context.Context, guildID, userID string) ([]Entry, error) {
	doc, err := storage.Read[GuildSettings](ctx, s.store, GuildKind, guildID)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, entry := range doc.Keywords {
		if entry.OwnerID == userID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Word < out[j].Word })
	return out, nil
}

// Pause stops all notifications for the user in every guild.
func (s *Service) Pause(ctx context.Context, userID string) error {
	return s.setPaused(ctx, userID, true)
}

func (s *Service) Resume(ctx context.Context, userID string) error {
	return s.setPaused(ctx, userID, false)
}

func (s *Service) setPaused(ctx context.Context, userID string, paused bool) error {
	err := storage.Modify(ctx, s.store, UserKind, userID, func(doc *UserSettings) error {
		if doc.Paused == paused {
			return storage.ErrNoChange
		}
		doc.Paused = paused
		return nil
	})
	if err != nil {
		return err
	}

	// Guilds that are not cached pick the change up on their first build.
	// Bumping before the range makes any lazy build still in flight either
	// land in the range or discard its result.
	s.bumpEpoch()
	var guilds []string
	s.indexes.Range(func(guildID string, _ *Index) bool {
		guilds = append(guilds, guildID)
		return true
	})
	for _, guildID := range guilds {
		if err := s.rebuild(ctx, guildID); err != nil {
			return err
		}
	}
	return nil
}
