package clock

import (
	"sync"
	"time"
)

// Group tracks timers scheduled through it. Flush stops the pending ones and
// runs their functions right away; timers scheduled after Flush run inline.
type Group struct {
	clock Clock

	mu      sync.Mutex
	next    uint64
	pending map[uint64]*groupTimer
	flushed bool
}

type groupTimer struct {
	timer Timer
	fn    func()
}

func NewGroup(c Clock) *Group {
	return &Group{clock: c, pending: make(map[uint64]*groupTimer)}
}

func (g *Group) AfterFunc(d time.Duration, fn func()) {
	g.mu.Lock()
	if g.flushed {
		g.mu.Unlock()
		fn()
		return
	}
	id := g.next
	g.next++
	entry := &groupTimer{fn: fn}
	g.pending[id] = entry
	entry.timer = g.clock.AfterFunc(d, func() {
		if g.take(id) {
			fn()
		}
	})
	g.mu.Unlock()
}

func (g *Group) take(id uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pending[id]; !ok {
		return false
	}
	delete(g.pending, id)
	return true
}

// Pending returns the number of timers that have not run yet.
func (g *Group) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Flush runs every pending function once, on the caller's goroutine.
func (g *Group) Flush() {
	g.mu.Lock()
	g.flushed = true
	pending := g.pending
	g.pending = make(map[uint64]*groupTimer)
	g.mu.Unlock()

	// Removal from the map claims the entry, so a timer that fired
	// concurrently finds nothing to take.
	for _, entry := range pending {
		entry.timer.Stop()
		entry.fn()
	}
}
