// Package metrics exposes Prometheus collectors for the miner.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eore"

var (
	// Rounds counts finished rounds by outcome status (confirmed, failed).
	Rounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rounds_total",
		Help:      "Mining rounds by outcome status.",
	}, []string{"status"})

	// Hashes counts nonces evaluated by search workers.
	Hashes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hashes_total",
		Help:      "Nonces evaluated by search workers.",
	})

	// BestDifficulty is the best difficulty of the most recent round.
	BestDifficulty = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "best_difficulty",
		Help:      "Best difficulty found in the most recent round.",
	})

	// RoundCutoff is the search cutoff computed for the current round.
	RoundCutoff = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "round_cutoff_seconds",
		Help:      "Search cutoff computed for the current round.",
	})

	// Rewards accumulates confirmed rewards in whole tokens.
	Rewards = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rewards_total",
		Help:      "Confirmed mining rewards in tokens.",
	})

	// PriorityFee is the compute unit price attached to the last submission.
	PriorityFee = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "priority_fee_microlamports",
		Help:      "Compute unit price of the last submission.",
	})

	// RPCRetries counts retried chain reads by method.
	RPCRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_retries_total",
		Help:      "Retried chain reads.",
	}, []string{"op"})

	// ConfirmationPolls counts getTransaction polls while confirming.
	ConfirmationPolls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "confirmation_polls_total",
		Help:      "Transaction lookups issued while waiting for confirmation.",
	})

	// Resets counts submissions that carried an epoch reset.
	Resets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resets_total",
		Help:      "Submissions that included an epoch reset instruction.",
	})
)

// Handler returns the HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
