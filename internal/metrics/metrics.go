package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PreviewFetches counts order preview fetches by result
	PreviewFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_preview_fetches_total",
		Help: "Order preview fetches against the storefront platform, by result.",
	}, []string{"result"})

	// PreviewStaleDropped counts preview responses discarded because a newer
	// trigger superseded them
	PreviewStaleDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_preview_stale_dropped_total",
		Help: "Preview responses dropped by the latest-wins sequence guard.",
	})

	// Submits counts settled checkout submissions by destination
	Submits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_submits_total",
		Help: "Settled checkout submissions, by navigation destination.",
	}, []string{"destination"})

	// SubmitsBlocked counts submits rejected by the in-flight guard
	SubmitsBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_submits_blocked_total",
		Help: "Checkout submissions rejected because one was already in flight.",
	})

	// IdempotentReplays counts submits answered from a stored idempotency key
	IdempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_idempotent_replays_total",
		Help: "Checkout submissions replayed from a stored idempotency key.",
	})
)
