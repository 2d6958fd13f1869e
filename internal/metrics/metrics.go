package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics agrupa las metricas Prometheus del motor de evaluacion.
type Metrics struct {
	// Banco de items
	ItemBankDegraded prometheus.Gauge
	ItemBankItems    *prometheus.GaugeVec

	// Seleccion y sesiones
	ItemsAdministered  *prometheus.CounterVec
	SelectionDuration  *prometheus.HistogramVec
	ResponsesRecorded  *prometheus.CounterVec
	SessionTransitions *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge

	// Perfil conductual y prediccion
	HintsServed       *prometheus.CounterVec
	PredictionsServed *prometheus.CounterVec

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics registra las metricas una sola vez por proceso.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			ItemBankDegraded: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "eiq_item_bank_degraded",
					Help: "1 when the engine is serving the embedded fallback bank",
				},
			),
			ItemBankItems: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "eiq_item_bank_items",
					Help: "Active items in the loaded snapshot",
				},
				[]string{"domain"},
			),
			ItemsAdministered: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "eiq_items_administered_total",
					Help: "Items administered to sessions",
				},
				[]string{"domain"},
			),
			SelectionDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "eiq_item_selection_duration_seconds",
					Help:    "Time spent ranking and administering the next item",
					Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
				},
				[]string{"domain"},
			),
			ResponsesRecorded: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "eiq_responses_total",
					Help: "Responses recorded by domain and correctness",
				},
				[]string{"domain", "correct"},
			),
			SessionTransitions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "eiq_session_transitions_total",
					Help: "Session state transitions",
				},
				[]string{"state"},
			),
			ActiveSessions: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "eiq_sessions_in_progress",
					Help: "Sessions currently in progress",
				},
			),
			HintsServed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "eiq_hints_served_total",
					Help: "Personalized hints served by level",
				},
				[]string{"level"},
			),
			PredictionsServed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "eiq_predictions_total",
					Help: "Growth predictions by outcome",
				},
				[]string{"status"},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "eiq_http_requests_total",
					Help: "HTTP requests by route and status",
				},
				[]string{"method", "route", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "eiq_http_request_duration_seconds",
					Help:    "HTTP request latency",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "route"},
			),
		}
	})
	return sharedMetrics
}

// Los helpers toleran un receptor nil para que los servicios funcionen sin metricas.

func (m *Metrics) SetItemBank(degraded bool, perDomain map[string]int) {
	if m == nil {
		return
	}
	if degraded {
		m.ItemBankDegraded.Set(1)
	} else {
		m.ItemBankDegraded.Set(0)
	}
	for d, n := range perDomain {
		m.ItemBankItems.WithLabelValues(d).Set(float64(n))
	}
}

func (m *Metrics) ObserveSelection(domain string, started time.Time, administered bool) {
	if m == nil {
		return
	}
	m.SelectionDuration.WithLabelValues(domain).Observe(time.Since(started).Seconds())
	if administered {
		m.ItemsAdministered.WithLabelValues(domain).Inc()
	}
}

func (m *Metrics) RecordResponse(domain string, correct bool) {
	if m == nil {
		return
	}
	m.ResponsesRecorded.WithLabelValues(domain, strconv.FormatBool(correct)).Inc()
}

func (m *Metrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(state).Inc()
	switch state {
	case "in_progress":
		m.ActiveSessions.Inc()
	case "completed", "abandoned":
		m.ActiveSessions.Dec()
	}
}

func (m *Metrics) RecordHint(level int) {
	if m == nil {
		return
	}
	m.HintsServed.WithLabelValues(strconv.Itoa(level)).Inc()
}

func (m *Metrics) RecordPrediction(status string) {
	if m == nil {
		return
	}
	m.PredictionsServed.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
