package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors for the investigation engine.
// Collectors are registered on construction; pass a fresh registry in tests.
type Metrics struct {
	ProviderCalls     *prometheus.CounterVec
	ProviderDuration  *prometheus.HistogramVec
	CircuitTransitions *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
	SARIterations     *prometheus.CounterVec
	ScreeningDuration prometheus.Histogram
	ScreeningsTotal   *prometheus.CounterVec
	AlertsEmitted     *prometheus.CounterVec
}

// New registers and returns the engine collectors
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screening_provider_calls_total",
			Help: "Provider gateway calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screening_provider_call_duration_seconds",
			Help:    "Provider call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		CircuitTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screening_circuit_transitions_total",
			Help: "Circuit breaker state transitions by provider",
		}, []string{"provider", "from", "to"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screening_cache_lookups_total",
			Help: "Cache lookups by freshness decision",
		}, []string{"decision"}),
		SARIterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screening_sar_iterations_total",
			Help: "SAR iterations by information type",
		}, []string{"info_type"}),
		ScreeningDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screening_duration_seconds",
			Help:    "End-to-end screening duration",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
		}),
		ScreeningsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenings_total",
			Help: "Screenings by terminal status",
		}, []string{"status"}),
		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screening_alerts_total",
			Help: "Monitoring alerts by evolution signal",
		}, []string{"signal"}),
	}

	reg.MustRegister(
		m.ProviderCalls,
		m.ProviderDuration,
		m.CircuitTransitions,
		m.CacheLookups,
		m.SARIterations,
		m.ScreeningDuration,
		m.ScreeningsTotal,
		m.AlertsEmitted,
	)
	return m
}

// NewNop returns collectors registered on a throwaway registry
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
