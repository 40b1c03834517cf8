// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Settlement metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	FeeRetained       prometheus.Counter
	TaxRetained       prometheus.Counter
	NetPaidOut        prometheus.Counter
	PointsCredited    prometheus.Counter

	// Guard metrics
	GuardRejections *prometheus.CounterVec

	// Oracle metrics
	OracleFailures    *prometheus.CounterVec
	ResolvedForcaUSD  prometheus.Gauge
	AttestationAgeSec prometheus.Gauge

	// Price feed metrics
	WSReconnects      prometheus.Counter
	WSMessagesTotal   prometheus.Counter
	LastFeedUpdate    prometheus.Gauge

	// Database metrics
	DBQueryErrors *prometheus.CounterVec

	// Health metrics
	VaultPaused   prometheus.Gauge
	UptimeSeconds prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "flashorca_ally"
	}

	return &Metrics{
		// Settlement metrics
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "operations_total",
			Help:      "Total number of vault operations by op and status",
		}, []string{"op", "status"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "operation_duration_seconds",
			Help:      "Vault operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		FeeRetained: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "fee_retained_micro_total",
			Help:      "Total base fee retained in micro token units",
		}),
		TaxRetained: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "tax_retained_micro_total",
			Help:      "Total excess tax retained in micro token units",
		}),
		NetPaidOut: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "net_paid_out_micro_total",
			Help:      "Total net claims paid out in micro token units",
		}),
		PointsCredited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "points_credited_micro_total",
			Help:      "Total points credited in micro-USD units",
		}),

		// Guard metrics
		GuardRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "rejections_total",
			Help:      "Total claim admissions rejected by reason",
		}, []string{"reason"}),

		// Oracle metrics
		OracleFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "failures_total",
			Help:      "Total oracle verification failures by kind",
		}, []string{"kind"}),
		ResolvedForcaUSD: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "resolved_forca_usd_micro",
			Help:      "Last resolved FORCA/USD micro rate",
		}),
		AttestationAgeSec: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "attestation_age_seconds",
			Help:      "Age of the last accepted attestation in seconds",
		}),

		// Price feed metrics
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "ws_reconnects_total",
			Help:      "Total WebSocket reconnect attempts",
		}),
		WSMessagesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "ws_messages_total",
			Help:      "Total WebSocket messages received",
		}),
		LastFeedUpdate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "last_update_timestamp",
			Help:      "Unix timestamp of the last feed snapshot update",
		}),

		// Database metrics
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		VaultPaused: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "vault_paused",
			Help:      "1 when the vault is paused, 0 otherwise",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOperation increments the operation counter for op with the outcome.
func (m *Metrics) RecordOperation(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "rejected"
	}
	m.OperationsTotal.WithLabelValues(op, status).Inc()
}
