package window

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestCacheAddKeepsOrder(t *testing.T) {
	cache := New[string]()
	now := time.Unix(1000, 0)
	cache.Add(now.Add(2*time.Second), "c")
	cache.Add(now, "a")
	cache.Add(now.Add(1*time.Second), "b")
	cache.Add(now.Add(1*time.Second), "b2")

	if diff := cmp.Diff([]string{"a", "b", "b2", "c"}, cache.Items()); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if !cache.Newest().Equal(now.Add(2 * time.Second)) {
		t.Fatalf("unexpected newest: %v", cache.Newest())
	}
}

func TestCacheSlideWindow(t *testing.T) {
	cache := New[int]()
	now := time.Unix(1000, 0)
	for i := 0; i < 10; i++ {
		cache.Add(now.Add(time.Duration(i)*time.Second), i)
	}

	cache.SlideWindow(3 * time.Second)
	if diff := cmp.Diff([]int{6, 7, 8, 9}, cache.Items()); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	newest := cache.Newest()
	for _, entry := range cache.Entries() {
		if entry.At.Before(newest.Add(-3 * time.Second)) {
			t.Fatalf("entry %v outside window", entry.At)
		}
	}
}

func TestCacheSlideWindowFrom(t *testing.T) {
	cache := New[int]()
	now := time.Unix(1000, 0)
	cache.Add(now, 1)
	cache.Add(now.Add(5*time.Second), 2)

	cache.SlideWindowFrom(10*time.Second, now.Add(12*time.Second))
	if got := cache.Count(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	cache.SlideWindowFrom(10*time.Second, now.Add(time.Minute))
	if got := cache.Count(); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	cache.SlideWindow(time.Second)
}

func TestCacheClear(t *testing.T) {
	cache := New[int]()
	cache.Add(time.Unix(1, 0), 1)
	cache.Clear()
	if cache.Count() != 0 || !cache.Newest().IsZero() {
		t.Fatalf("expected empty cache")
	}
}
