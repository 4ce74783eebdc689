// Package metrics defines and registers the custom Prometheus metrics of the
// vault-agents API. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry through
// promauto when the package is loaded.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vault_agents"

// ── Entry points ──────────────────────────────────────────────────────────────

// SignupsTotal counts signup attempts.
// Label:
//   - result: "ok", "conflict", "invalid" or "error"
var SignupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signups_total",
		Help:      "Total number of signup attempts, by result.",
	},
	[]string{"result"},
)

// SigninsTotal counts successful signins.
// Label:
//   - state: agent state seen at signin ("authorized", "unauthorized", "revoked")
var SigninsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signins_total",
		Help:      "Total number of successful signins, by agent state.",
	},
	[]string{"state"},
)

// ── Authorization ─────────────────────────────────────────────────────────────

// TokensIssuedTotal counts auth tokens minted by authorized agents.
var TokensIssuedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of auth tokens issued.",
	},
)

// AuthenticationsTotal counts token spending attempts.
// Label:
//   - result: "ok", "failure", "revoked" or "error"
var AuthenticationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authentications_total",
		Help:      "Total number of agent authentication attempts, by result.",
	},
	[]string{"result"},
)

// RevocationsTotal counts revocation attempts.
// Label:
//   - result: "ok" or "rejected"
var RevocationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "revocations_total",
		Help:      "Total number of agent revocation attempts, by result.",
	},
	[]string{"result"},
)

// ── Sessions ──────────────────────────────────────────────────────────────────

// SessionsActive tracks the sessions currently held by this process.
var SessionsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Current number of open sessions served by this process.",
	},
)

// StreamsActive tracks open websocket streams.
var StreamsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "streams_active",
		Help:      "Current number of open session websocket streams.",
	},
)
