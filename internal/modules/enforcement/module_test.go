package enforcement

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/clock"
	"github.com/asmejkal/DustyBot-sub000/internal/modules/audit"
	"github.com/asmejkal/DustyBot-sub000/internal/modules/raidprotect"
	"github.com/asmejkal/DustyBot-sub000/internal/rules"
	"github.com/asmejkal/DustyBot-sub000/internal/state"
	"github.com/asmejkal/DustyBot-sub000/internal/transport"

	"go.uber.org/zap"
)

func newTestModule() (*Module, *transport.Fake, *clock.Fake) {
	fake := clock.NewFake(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	tr := transport.NewFake()
	registry := state.NewRegistry(zap.NewNop(), fake, 0)
	auditLogger := audit.NewLogger(nil, zap.NewNop(), tr)
	return New(registry, tr, auditLogger, fake, zap.NewNop(), Options{MuteDuration: time.Hour, NoticeDuration: 10 * time.Second}), tr, fake
}

func trigger(rule rules.Rule) raidprotect.Trigger {
	return raidprotect.Trigger{
		Type:         rules.TextSpam,
		Rule:         rule,
		GuildID:      "g1",
		UserID:       "u1",
		ChannelID:    "c1",
		LogChannelID: "log",
		Reason:       "Posted 5 messages in 10s",
		Offending:    []state.MessageRef{{ChannelID: "c1", MessageID: "m1"}, {ChannelID: "c1", MessageID: "m2"}},
	}
}

func TestOffenseEscalation(t *testing.T) {
	m, tr, fake := newTestModule()
	ctx := context.Background()
	rule := rules.Rule{Enabled: true, Threshold: 5, Window: 10 * time.Second, MaxOffenses: 3, OffenseWindow: 5 * time.Minute}

	for i := 0; i < 2; i++ {
		if got := m.Enforce(ctx, trigger(rule)); got != ActionWarn {
			t.Fatalf("offense %d: expected warn, got %s", i+1, got)
		}
		fake.Advance(time.Minute)
	}
	if got := m.Enforce(ctx, trigger(rule)); got != ActionPunish {
		t.Fatalf("expected third offense to punish, got %s", got)
	}
	if tr.MuteCount() != 1 || tr.Mutes[0].Reason != muteReason {
		t.Fatalf("expected one mute, got %+v", tr.Mutes)
	}
	if want := fake.Now().Add(time.Hour); !tr.Mutes[0].Until.Equal(want) {
		t.Fatalf("expected mute until %v, got %v", want, tr.Mutes[0].Until)
	}

	// A fresh count starts after the window.
	fake.Advance(6 * time.Minute)
	for i := 0; i < 2; i++ {
		if got := m.Enforce(ctx, trigger(rule)); got != ActionWarn {
			t.Fatalf("expected a fresh count, got %s", got)
		}
	}
	if tr.MuteCount() != 1 {
		t.Fatalf("unexpected extra mute")
	}
}

func TestOffensesOutsideWindowExpire(t *testing.T) {
	m, _, fake := newTestModule()
	ctx := context.Background()
	rule := rules.Rule{Enabled: true, MaxOffenses: 3, OffenseWindow: 5 * time.Minute}

	m.Enforce(ctx, trigger(rule))
	m.Enforce(ctx, trigger(rule))
	fake.Advance(6 * time.Minute)
	if got := m.Enforce(ctx, trigger(rule)); got != ActionWarn {
		t.Fatalf("old offenses must not count, got %s", got)
	}
}

func TestWithoutEscalationAlwaysWarns(t *testing.T) {
	m, tr, _ := newTestModule()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if got := m.Enforce(ctx, trigger(rules.Rule{Enabled: true})); got != ActionWarn {
			t.Fatalf("expected warn, got %s", got)
		}
	}
	if tr.MuteCount() != 0 {
		t.Fatalf("expected no mutes")
	}
}

func TestDeleteNoticeAndAudit(t *testing.T) {
	m, tr, fake := newTestModule()
	ctx := context.Background()
	rule := rules.Rule{Enabled: true, DeleteOnTrigger: true, MaxOffenses: 1, OffenseWindow: time.Minute}

	if got := m.Enforce(ctx, trigger(rule)); got != ActionPunish {
		t.Fatalf("expected punish, got %s", got)
	}
	m.Wait()
	deleted := tr.DeletedMessages()
	if len(deleted) != 2 || deleted[0] != "c1/m1" || deleted[1] != "c1/m2" {
		t.Fatalf("expected offending messages deleted, got %v", deleted)
	}

	notices := tr.ChannelEmbeds("c1")
	if len(notices) != 1 || notices[0].Color != audit.ColorCrit {
		t.Fatalf("expected one red notice, got %+v", notices)
	}
	logs := tr.ChannelEmbeds("log")
	if len(logs) != 1 || logs[0].Color != audit.ColorCrit || logs[0].Title != "TextSpam" {
		t.Fatalf("expected one red audit entry, got %+v", logs)
	}

	fake.Advance(10 * time.Second)
	if deleted := tr.DeletedMessages(); len(deleted) != 3 || deleted[2] != "c1/sent-1" {
		t.Fatalf("expected the notice to delete itself, got %v", deleted)
	}
}

func TestFlushDeletesPendingNotices(t *testing.T) {
	m, tr, fake := newTestModule()
	rule := rules.Rule{Enabled: true}

	if got := m.Enforce(context.Background(), trigger(rule)); got != ActionWarn {
		t.Fatalf("expected warn, got %s", got)
	}
	m.Wait()
	if deleted := tr.DeletedMessages(); len(deleted) != 0 {
		t.Fatalf("nothing should be deleted yet, got %v", deleted)
	}

	m.Flush()
	deleted := tr.DeletedMessages()
	if len(deleted) != 1 || !strings.HasPrefix(deleted[0], "c1/") {
		t.Fatalf("expected the notice to be deleted on flush, got %v", deleted)
	}
	if fake.Pending() != 0 {
		t.Fatalf("expected no timers left, got %d", fake.Pending())
	}
	fake.Advance(time.Minute)
	if deleted := tr.DeletedMessages(); len(deleted) != 1 {
		t.Fatalf("notice deleted twice: %v", deleted)
	}
}

func TestTransportFailuresAreNotFatal(t *testing.T) {
	m, tr, _ := newTestModule()
	tr.FailDeletes = true
	rule := rules.Rule{Enabled: true, DeleteOnTrigger: true}

	if got := m.Enforce(context.Background(), trigger(rule)); got != ActionWarn {
		t.Fatalf("expected warn, got %s", got)
	}
	m.Wait()
	if logs := tr.ChannelEmbeds("log"); len(logs) != 1 || logs[0].Color != audit.ColorWarn {
		t.Fatalf("audit entry must still be posted, got %+v", logs)
	}
}
