package clock

import (
	"testing"
	"time"
)

func TestGroupRunsOnSchedule(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	group := NewGroup(fake)
	runs := 0
	group.AfterFunc(time.Second, func() { runs++ })

	fake.Advance(500 * time.Millisecond)
	if runs != 0 || group.Pending() != 1 {
		t.Fatalf("expected timer to be pending, runs=%d pending=%d", runs, group.Pending())
	}
	fake.Advance(time.Second)
	if runs != 1 || group.Pending() != 0 {
		t.Fatalf("expected timer to fire once, runs=%d pending=%d", runs, group.Pending())
	}

	group.Flush()
	if runs != 1 {
		t.Fatalf("flush must not rerun fired timers, runs=%d", runs)
	}
}

func TestGroupFlush(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	group := NewGroup(fake)
	var order []string
	group.AfterFunc(time.Minute, func() { order = append(order, "a") })
	group.AfterFunc(time.Hour, func() { order = append(order, "b") })

	group.Flush()
	if len(order) != 2 || group.Pending() != 0 || fake.Pending() != 0 {
		t.Fatalf("expected both timers to run and stop, ran %v, clock pending %d", order, fake.Pending())
	}

	fake.Advance(2 * time.Hour)
	if len(order) != 2 {
		t.Fatalf("stopped timers fired again: %v", order)
	}

	group.AfterFunc(time.Minute, func() { order = append(order, "late") })
	if len(order) != 3 || order[2] != "late" {
		t.Fatalf("expected timers scheduled after flush to run inline, got %v", order)
	}
}
