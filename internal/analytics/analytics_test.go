package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/storage"

	"github.com/google/go-cmp/cmp"
)

func TestReport(t *testing.T) {
	store, err := storage.New(storage.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	now := time.Now()
	for _, log := range []storage.AuditLog{
		{GuildID: "g1", Level: "WARN", Event: "TextSpam", CreatedAt: now},
		{GuildID: "g1", Level: "WARN", Event: "TextSpam", CreatedAt: now},
		{GuildID: "g1", Level: "CRIT", Event: "MassMentions", CreatedAt: now},
		{GuildID: "g1", Level: "WARN", Event: "ImageSpam", CreatedAt: now.AddDate(0, 0, -10)},
		{GuildID: "g2", Level: "WARN", Event: "TextSpam", CreatedAt: now},
	} {
		if err := store.AddAuditLog(ctx, log); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	report, err := New(store).Report(ctx, "g1", now.AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	want := Report{
		Total:   3,
		ByLevel: map[string]int{"WARN": 2, "CRIT": 1},
		ByEvent: map[string]int{"TextSpam": 2, "MassMentions": 1},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
	if got := report.Events(); got != "TextSpam: 2\nMassMentions: 1" {
		t.Fatalf("unexpected events %q", got)
	}
	if got := (Report{}).Events(); got != "none" {
		t.Fatalf("unexpected empty events %q", got)
	}
}
