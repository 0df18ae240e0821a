package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded for one account's request flow.
const (
	OutcomeRequested = "requested"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

type TaxFormMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	linkFallbacks   prometheus.Counter
	eligibleGauge   *prometheus.GaugeVec
	runsTotal       *prometheus.CounterVec
}

func New() *TaxFormMetrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxform",
			Subsystem: "requests",
			Name:      "total",
			Help:      "Tax form request flows by outcome.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxform",
			Subsystem: "requests",
			Name:      "duration_seconds",
			Help:      "Duration of one account's tax form request flow.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"outcome"},
	)
	linkFallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taxform",
			Subsystem: "requests",
			Name:      "link_fallback_total",
			Help:      "Authenticated link failures that fell back to the unauthenticated step URL.",
		},
	)
	eligibleGauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "taxform",
			Subsystem: "runs",
			Name:      "eligible_accounts",
			Help:      "Accounts needing a tax form in the last run, by year.",
		},
		[]string{"year"},
	)
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxform",
			Subsystem: "runs",
			Name:      "total",
			Help:      "Eligibility passes by status.",
		},
		[]string{"status"},
	)

	registry.MustRegister(requestsTotal, requestDuration, linkFallbacks, eligibleGauge, runsTotal)

	return &TaxFormMetrics{
		registry:        registry,
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
		linkFallbacks:   linkFallbacks,
		eligibleGauge:   eligibleGauge,
		runsTotal:       runsTotal,
	}
}

func (m *TaxFormMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *TaxFormMetrics) ObserveRequest(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.requestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *TaxFormMetrics) LinkFallback() {
	if m == nil {
		return
	}
	m.linkFallbacks.Inc()
}

func (m *TaxFormMetrics) ObserveRun(year string, eligible int, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	} else {
		m.eligibleGauge.WithLabelValues(year).Set(float64(eligible))
	}
	m.runsTotal.WithLabelValues(status).Inc()
}
