// Package metrics exposes the Prometheus counters the pipeline bumps.
// Served by the dashboard's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSeen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muse_messages_seen_total",
		Help: "Inbound messages observed across all channels.",
	})

	MessagesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muse_messages_accepted_total",
		Help: "Messages that passed the engagement gate.",
	})

	Replies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muse_replies_total",
		Help: "Replies sent, by serving engine and fallback status.",
	}, []string{"engine", "fallback"})

	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muse_provider_errors_total",
		Help: "Failed generation attempts, counted per request.",
	}, []string{"stage"})

	AwayTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muse_away_transitions_total",
		Help: "Times the agent went away, by reason.",
	}, []string{"reason"})

	Extractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muse_extractions_total",
		Help: "Memory extraction runs, by outcome.",
	}, []string{"outcome"})

	BatchedTurns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muse_batched_turns_total",
		Help: "Flushed turns that combined more than one message.",
	})
)
