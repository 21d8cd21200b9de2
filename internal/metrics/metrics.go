// Package metrics registers and exposes the Prometheus metrics the bot
// updates during operation. Served at /metrics in Prometheus text exposition
// format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goldbot_messages_total",
			Help: "Inbound messages by classification",
		},
		[]string{"category"}, // signal|management|noise
	)

	parseFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "goldbot_parse_failures_total",
			Help: "Messages classified as signals that failed to parse",
		},
	)

	splits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goldbot_splits_total",
			Help: "Split execution decisions",
		},
		[]string{"mode"}, // market|limit|stop|skip
	)

	managementApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goldbot_management_applied_total",
			Help: "Management actions confirmed at the venue",
		},
		[]string{"type"}, // be|move_sl|close
	)

	venueErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goldbot_venue_errors_total",
			Help: "Venue call failures by operation and classification",
		},
		[]string{"op", "kind"}, // kind: transient|permanent
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "goldbot_open_positions",
			Help: "Positions currently OPEN",
		},
	)

	pendingOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "goldbot_pending_orders",
			Help: "Orders currently resting at the venue",
		},
	)

	closedTrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goldbot_closed_trades_total",
			Help: "Positions closed, by how the close happened",
		},
		[]string{"reason"}, // managed|external|canceled
	)
)

func init() {
	prometheus.MustRegister(messages, parseFailures, splits)
	prometheus.MustRegister(managementApplied, venueErrors)
	prometheus.MustRegister(openPositions, pendingOrders, closedTrades)
}

// Helper setters used by the engine and watchers.

func IncMessage(category string) { messages.WithLabelValues(category).Inc() }

func IncParseFailure() { parseFailures.Inc() }

func IncSplit(mode string) { splits.WithLabelValues(mode).Inc() }

func IncManagementApplied(typ string) { managementApplied.WithLabelValues(typ).Inc() }

func IncVenueError(op string, permanent bool) {
	kind := "transient"
	if permanent {
		kind = "permanent"
	}
	venueErrors.WithLabelValues(op, kind).Inc()
}

func SetOpenPositions(n int) { openPositions.Set(float64(n)) }

func SetPendingOrders(n int) { pendingOrders.Set(float64(n)) }

func IncClosedTrade(reason string) { closedTrades.WithLabelValues(reason).Inc() }

// Handler returns the Prometheus exposition handler for mounting at /metrics.
func Handler() http.Handler { return promhttp.Handler() }
