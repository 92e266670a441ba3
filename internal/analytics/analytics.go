package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/storage"
)

type Service struct {
	store *storage.Store
}

func New(store *storage.Store) *Service {
	return &Service{store: store}
}

// Report summarises a guild's audit trail.
type Report struct {
	Total   int
	ByLevel map[string]int
	ByEvent map[string]int
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	logs, err := s.store.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{ByLevel: make(map[string]int), ByEvent: make(map[string]int)}
	for _, log := range logs {
		report.Total++
		report.ByLevel[log.Level]++
		report.ByEvent[log.Event]++
	}
	return report, nil
}

// Events renders the per-event counts, most frequent first.
func (r Report) Events() string {
	if len(r.ByEvent) == 0 {
		return "none"
	}
	events := make([]string, 0, len(r.ByEvent))
	for event := range r.ByEvent {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool {
		if r.ByEvent[events[i]] != r.ByEvent[events[j]] {
			return r.ByEvent[events[i]] > r.ByEvent[events[j]]
		}
		return events[i] < events[j]
	})
	lines := make([]string, 0, len(events))
	for _, event := range events {
		lines = append(lines, fmt.Sprintf("%s: %d", event, r.ByEvent[event]))
	}
	return strings.Join(lines, "\n")
}
