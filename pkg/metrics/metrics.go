// Package metrics exposes Prometheus counters shared by the scanner loops.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksScanned counts chain blocks inspected, partitioned by whether the
	// block arrived as the expected next block or during missed-range catch-up.
	BlocksScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trxgate",
		Name:      "blocks_scanned_total",
		Help:      "Chain blocks inspected for deposit transactions",
	}, []string{"kind"})

	// PaymentsVerified counts payments matched to an observed deposit,
	// partitioned by the detection path that found them.
	PaymentsVerified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trxgate",
		Name:      "payments_verified_total",
		Help:      "Payments verified against an observed transfer",
	}, []string{"source"})

	// SweepsCompleted counts successful balance transfers to the collection
	// address.
	SweepsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trxgate",
		Name:      "sweeps_completed_total",
		Help:      "Deposit address balances swept to the collection address",
	})

	// WatcherErrors counts per-event handler failures, partitioned by watcher.
	WatcherErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trxgate",
		Name:      "watcher_errors_total",
		Help:      "Errors recovered inside watcher event handlers",
	}, []string{"watcher"})
)
