package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all Prometheus metrics for the timeclock service
type Registry struct {
	// HTTP metrics (ops API)
	HTTPRequestsTotal   prometheus.CounterVec
	HTTPRequestDuration prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   prometheus.CounterVec
	CacheMissesTotal prometheus.CounterVec

	// Business metrics
	PunchEventsTotal prometheus.CounterVec
	GuildsCached     prometheus.Gauge
	MembersCached    prometheus.Gauge
	WarmDuration     prometheus.Histogram
}

// NewRegistry initializes and returns a new Registry with all metrics
func NewRegistry() *Registry {
	return &Registry{
		HTTPRequestsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timeclock_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "timeclock_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"endpoint", "method"},
		),
		CacheHitsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timeclock_cache_hits_total",
				Help: "Total in-memory index hits by cache",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timeclock_cache_misses_total",
				Help: "Total in-memory index misses that fell back to the store",
			},
			[]string{"cache"},
		),
		PunchEventsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timeclock_punch_events_total",
				Help: "Total punch events by resulting transition",
			},
			[]string{"transition"},
		),
		GuildsCached: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "timeclock_guilds_cached",
				Help: "Guild aggregates currently held in the in-memory index",
			},
		),
		MembersCached: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "timeclock_members_cached",
				Help: "Member aggregates currently held in the in-memory index",
			},
		),
		WarmDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "timeclock_cache_warm_duration_seconds",
				Help:    "Startup cache warm duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),
	}
}
