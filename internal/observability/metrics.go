package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ChatIntents      *prometheus.CounterVec
	Confirmations    *prometheus.CounterVec
	OracleFallbacks  prometheus.Counter
	RemindersSent    *prometheus.CounterVec
	ConnectedSockets prometheus.Gauge
	ChatLatency      prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ChatIntents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_intents_total",
			Help:      "Resolved chat intents by type.",
		}, []string{"type"}),
		Confirmations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Confirmation outcomes by kind and result.",
		}, []string{"kind", "outcome"}),
		OracleFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_fallbacks_total",
			Help:      "Messages resolved by the lexical fallback parser.",
		}),
		RemindersSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Reminder notifications sent by kind.",
		}, []string{"kind"}),
		ConnectedSockets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_sockets",
			Help:      "Number of open notification websocket connections.",
		}),
		ChatLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_message_latency_ms",
			Help:      "End-to-end chat message handling latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
