package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_events_processed",
	Help: "Number of inbound gateway events processed",
}, []string{"type"})

var EventPanics = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_event_panics",
	Help: "Number of recovered panics in event pipelines",
}, []string{"pipeline"})

var KeywordMatches = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_keyword_matches",
	Help: "Keyword candidates accepted after boundary and ownership checks",
})

var NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_notifications_delivered",
	Help: "Direct message notifications sent, by kind",
}, []string{"kind"})

var NotificationsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_notifications_skipped",
	Help: "Keyword notifications dropped before delivery, by reason",
}, []string{"reason"})

var KeywordIndexBuilds = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_keyword_index_builds",
	Help: "Number of keyword index rebuilds",
})

var RuleTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_raid_rule_triggers",
	Help: "Raid protection rule triggers, by rule",
}, []string{"rule"})

var Enforcements = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_raid_enforcements",
	Help: "Enforcement outcomes, by rule and action",
}, []string{"rule", "action"})

var TransportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_transport_errors",
	Help: "Failed outbound chat API calls, by operation",
}, []string{"op"})

var GuildContexts = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "sentinel_runtime_guild_contexts",
	Help: "Live per-guild runtime contexts",
})

var UserContexts = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "sentinel_runtime_user_contexts",
	Help: "Live per-user runtime contexts",
})

var SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "sentinel_runtime_sweep_duration_sec",
	Help: "Duration of runtime context sweeps",
})
