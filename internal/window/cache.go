package window

import (
	"sort"
	"time"
)

type Entry[T any] struct {
	At   time.Time
	Item T
}

// Cache keeps items ordered by timestamp and evicts the ones that fall out of
// a time window. It does no locking; callers hold the owning context's mutex.
type Cache[T any] struct {
	entries []Entry[T]
}

func New[T any]() *Cache[T] {
	return &Cache[T]{}
}

// Add inserts at the position that keeps the cache sorted. Events delivered
// concurrently can arrive slightly out of order; equal timestamps keep
// insertion order.
func (c *Cache[T]) Add(at time.Time, item T) {
	idx := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].At.After(at)
	})
	c.entries = append(c.entries, Entry[T]{})
	copy(c.entries[idx+1:], c.entries[idx:])
	c.entries[idx] = Entry[T]{At: at, Item: item}
}

// SlideWindow drops every entry older than newest-window.
func (c *Cache[T]) SlideWindow(window time.Duration) {
	if len(c.entries) == 0 {
		return
	}
	c.SlideWindowFrom(window, c.entries[len(c.entries)-1].At)
}

// SlideWindowFrom drops every entry older than reference-window.
func (c *Cache[T]) SlideWindowFrom(window time.Duration, reference time.Time) {
	cutoff := reference.Add(-window)
	idx := sort.Search(len(c.entries), func(i int) bool {
		return !c.entries[i].At.Before(cutoff)
	})
	if idx == 0 {
		return
	}
	remaining := len(c.entries) - idx
	copy(c.entries, c.entries[idx:])
	clear(c.entries[remaining:])
	c.entries = c.entries[:remaining]
}

func (c *Cache[T]) Count() int {
	return len(c.entries)
}

func (c *Cache[T]) Clear() {
	c.entries = nil
}

// Newest returns the latest timestamp, or the zero time when empty.
func (c *Cache[T]) Newest() time.Time {
	if len(c.entries) == 0 {
		return time.Time{}
	}
	return c.entries[len(c.entries)-1].At
}

// Items returns a copy of the cached items, oldest first.
func (c *Cache[T]) Items() []T {
	items := make([]T, 0, len(c.entries))
	for _, entry := range c.entries {
		items = append(items, entry.Item)
	}
	return items
}

func (c *Cache[T]) Entries() []Entry[T] {
	out := make([]Entry[T], len(c.entries))
	copy(out, c.entries)
	return out
}
