package keywords

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/asmejkal/DustyBot-sub000/internal/storage"

	"go.uber.org/zap"
)

func newTestService(t *testing.T, limit int) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.New(storage.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewService(store, zap.NewNop(), limit), store
}

func owners(t *testing.T, s *Service, guildID, text string) map[string]int {
	t.Helper()
	ix, err := s.Index(context.Background(), guildID)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	lowered := Lower(text)
	out := make(map[string]int)
	for _, m := range ix.Match(lowered) {
		if m.Whole(lowered) {
			out[m.Entry.OwnerID]++
		}
	}
	return out
}

func TestAddRebuildsIndex(t *testing.T) {
	s, _ := newTestService(t, 0)
	ctx := context.Background()

	if got := owners(t, s, "g1", "say hello"); len(got) != 0 {
		t.Fatalf("expected empty index, got %v", got)
	}
	if err := s.Add(ctx, "g1", "a", "  Hello "); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := owners(t, s, "g1", "say HELLO world"); got["a"] != 1 {
		t.Fatalf("expected a match for a, got %v", got)
	}
	if got := owners(t, s, "g2", "say hello"); len(got) != 0 {
		t.Fatalf("keywords leaked into another guild: %v", got)
	}

	entries, err := s.List(ctx, "g1", "a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Word != "hello" || entries[0].Original != "Hello" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestAddValidation(t *testing.T) {
	s, _ := newTestService(t, 2)
	ctx := context.Background()

	if err := s.Add(ctx, "g1", "a", "   "); !errors.Is(err, ErrInvalidKeyword) {
		t.Fatalf("expected ErrInvalidKeyword, got %v", err)
	}
	if err := s.Add(ctx, "g1", "a", "one\ntwo"); !errors.Is(err, ErrInvalidKeyword) {
		t.Fatalf("expected ErrInvalidKeyword, got %v", err)
	}
	if err := s.Add(ctx, "g1", "a", "one"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(ctx, "g1", "a", "ONE"); !errors.Is(err, ErrDuplicateKeyword) {
		t.Fatalf("expected ErrDuplicateKeyword, got %v", err)
	}
	if err := s.Add(ctx, "g1", "b", "one"); err != nil {
		t.Fatalf("another user may add the same word: %v", err)
	}
	if err := s.Add(ctx, "g1", "a", "two"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(ctx, "g1", "a", "three"); !errors.Is(err, ErrKeywordLimit) {
		t.Fatalf("expected ErrKeywordLimit, got %v", err)
	}
}

func TestRemoveAndClear(t *testing.T) {
	s, _ := newTestService(t, 0)
	ctx := context.Background()

	for _, word := range []string{"alpha", "beta", "gamma"} {
		if err := s.Add(ctx, "g1", "a", word); err != nil {
			t.Fatalf("add %s: %v", word, err)
		}
	}
	if err := s.Add(ctx, "g1", "b", "beta"); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.Remove(ctx, "g1", "a", "BETA"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, "g1", "a", "beta"); !errors.Is(err, ErrKeywordNotFound) {
		t.Fatalf("expected ErrKeywordNotFound, got %v", err)
	}
	if got := owners(t, s, "g1", "beta"); got["a"] != 0 || got["b"] != 1 {
		t.Fatalf("unexpected owners after remove: %v", got)
	}

	removed, err := s.Clear(ctx, "g1", "a")
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 removed, got %d %v", removed, err)
	}
	if removed, err := s.Clear(ctx, "g1", "a"); err != nil || removed != 0 {
		t.Fatalf("second clear should be a no-op, got %d %v", removed, err)
	}
	if got := owners(t, s, "g1", "alpha gamma beta"); len(got) != 1 || got["b"] != 1 {
		t.Fatalf("unexpected owners after clear: %v", got)
	}
}

func TestPauseExcludesOwnerEverywhere(t *testing.T) {
	s, _ := newTestService(t, 0)
	ctx := context.Background()

	for _, guildID := range []string{"g1", "g2"} {
		if err := s.Add(ctx, guildID, "a", "ping"); err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := s.Add(ctx, guildID, "b", "ping"); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	// Only g1 is cached when pausing.
	s.indexes.Delete("g2")

	if err := s.Pause(ctx, "a"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	for _, guildID := range []string{"g1", "g2"} {
		if got := owners(t, s, guildID, "ping"); got["a"] != 0 || got["b"] != 1 {
			t.Fatalf("%s: paused owner still indexed: %v", guildID, got)
		}
	}

	if err := s.Resume(ctx, "a"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := owners(t, s, "g1", "ping"); got["a"] != 1 {
		t.Fatalf("resumed owner missing: %v", got)
	}
}

// blockLazyBuild parks the first lazy build of s after it has read the store
// and returns a function that releases it.
func blockLazyBuild(s *Service) (built <-chan struct{}, release func()) {
	ready := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	s.afterLazyBuild = func(string) {
		once.Do(func() {
			close(ready)
			<-gate
		})
	}
	return ready, func() { close(gate) }
}

func TestLazyBuildDoesNotOverwriteNewerIndex(t *testing.T) {
	seed, store := newTestService(t, 0)
	ctx := context.Background()
	if err := seed.Add(ctx, "g1", "a", "hello"); err != nil {
		t.Fatalf("add: %v", err)
	}

	s := NewService(store, zap.NewNop(), 0)
	built, release := blockLazyBuild(s)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Index(ctx, "g1")
	}()
	<-built

	if err := s.Add(ctx, "g1", "b", "hello"); err != nil {
		t.Fatalf("add: %v", err)
	}
	release()
	<-done

	got := owners(t, s, "g1", "hello")
	if got["a"] != 1 || got["b"] != 1 {
		t.Fatalf("expected both owners after the concurrent add, got %v", got)
	}
}

func TestLazyBuildDiscardedAfterPause(t *testing.T) {
	seed, store := newTestService(t, 0)
	ctx := context.Background()
	if err := seed.Add(ctx, "g1", "a", "hello"); err != nil {
		t.Fatalf("add: %v", err)
	}

	s := NewService(store, zap.NewNop(), 0)
	built, release := blockLazyBuild(s)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Index(ctx, "g1")
	}()
	<-built

	if err := s.Pause(ctx, "a"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	release()
	<-done

	if _, ok := s.indexes.Load("g1"); ok {
		t.Fatalf("a build that raced with pause must not be cached")
	}
	if got := owners(t, s, "g1", "hello"); got["a"] != 0 {
		t.Fatalf("paused owner must be excluded, got %v", got)
	}
}
