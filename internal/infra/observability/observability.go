// Package observability exposes the engine's Prometheus metrics.
// All metrics are package-level promauto vars so any layer can record
// without plumbing a registry through constructors; the API server serves
// them on /metrics when metrics are enabled.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// LedgerTransactions counts applied ledger transactions by type.
var LedgerTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "ledger",
	Name:      "transactions_total",
	Help:      "Total ledger transactions applied, by transaction type.",
}, []string{"type"})

// PointsMoved counts the points moved through the ledger by type.
var PointsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "ledger",
	Name:      "points_moved_total",
	Help:      "Total points moved through the ledger, by transaction type.",
}, []string{"type"})

// ─── Mission Metrics ────────────────────────────────────────────────────────

// PoolsFunded counts funded mission pools.
var PoolsFunded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "missions",
	Name:      "pools_funded_total",
	Help:      "Total mission funding pools created.",
})

// PoolsCancelled counts cancelled mission pools.
var PoolsCancelled = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "missions",
	Name:      "pools_cancelled_total",
	Help:      "Total mission funding pools cancelled.",
})

// PointsRefunded counts points refunded by pool cancellations.
var PointsRefunded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "missions",
	Name:      "points_refunded_total",
	Help:      "Total unconsumed points refunded to businesses on cancellation.",
})

// Participations counts participation outcomes (approved, rejected).
var Participations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "missions",
	Name:      "participations_total",
	Help:      "Total participation decisions, by outcome.",
}, []string{"outcome"})

// ReversalShortfall counts points that could not be clawed back on rejection.
var ReversalShortfall = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "missions",
	Name:      "reversal_shortfall_points_total",
	Help:      "Total awarded points already spent when a rejection reversed them.",
})

// ─── Commitment Metrics ─────────────────────────────────────────────────────

// CommitmentsCreated counts created commitments by kind.
var CommitmentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "commitments",
	Name:      "created_total",
	Help:      "Total commitments created, by kind.",
}, []string{"kind"})

// CommitmentTransitions counts state transitions by target state.
var CommitmentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "commitments",
	Name:      "transitions_total",
	Help:      "Total commitment state transitions, by target state.",
}, []string{"to"})

// RateLimitRejections counts creates refused by the sliding window.
var RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "commitments",
	Name:      "rate_limit_rejections_total",
	Help:      "Total commitment creations refused by the rate limiter.",
})

// ─── Settlement Metrics ─────────────────────────────────────────────────────

// SweepRuns counts settlement sweep executions.
var SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "settlement",
	Name:      "sweep_runs_total",
	Help:      "Total settlement sweep executions.",
})

// CommitmentsSettled counts commitments settled by this node.
var CommitmentsSettled = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "settlement",
	Name:      "settled_total",
	Help:      "Total commitments whose reward this node released.",
})

// SweepErrors counts per-item settlement failures inside sweeps.
var SweepErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "settlement",
	Name:      "sweep_errors_total",
	Help:      "Total per-commitment errors encountered during sweeps.",
})

// PointsReleased counts reward points released at settlement.
var PointsReleased = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "settlement",
	Name:      "points_released_total",
	Help:      "Total reward points credited at settlement.",
})

// ─── API Metrics ────────────────────────────────────────────────────────────

// HTTPRequests counts API requests by route and status class.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "merit",
	Subsystem: "api",
	Name:      "http_requests_total",
	Help:      "Total API requests, by route pattern and status class.",
}, []string{"route", "status"})
