package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful mutations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed mutations.
	OutcomeError = "error"
)

const namespace = "bas_console"

var (
	mutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Uploads and report generations, partitioned by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	mutationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mutation_seconds",
			Help:      "Mutation latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"kind"},
	)

	mutationsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mutations_in_flight",
			Help:      "Mutations currently waiting on the backend.",
		},
	)

	cacheEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_events_total",
			Help:      "Query cache events (hit, fetch, discard, invalidate, evict) per operation.",
		},
		[]string{"operation", "event"},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "query_cache_entries",
			Help:      "Entries currently held by the query cache.",
		},
	)

	backendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Backend requests by route, method and status code (0 for transport failures).",
		},
		[]string{"route", "method", "code"},
	)

	backendRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_seconds",
			Help:      "Backend request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Register attaches bas-console collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		mutationsTotal,
		mutationDurationSeconds,
		mutationsInFlight,
		cacheEventsTotal,
		cacheEntries,
		backendRequestsTotal,
		backendRequestSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveMutation records a finished upload or report generation.
func ObserveMutation(kind string, duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	mutationsTotal.WithLabelValues(kind, label).Inc()
	if duration < 0 {
		duration = 0
	}
	mutationDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// MutationStarted and MutationFinished bracket a mutation for the in-flight gauge.
func MutationStarted()  { mutationsInFlight.Inc() }
func MutationFinished() { mutationsInFlight.Dec() }

// ObserveCacheEvent counts one query cache event.
func ObserveCacheEvent(operation, event string) {
	cacheEventsTotal.WithLabelValues(operation, event).Inc()
}

// SetCacheEntries publishes the current cache size.
func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

// ObserveBackendRequest records one gateway round trip.
func ObserveBackendRequest(route, method string, status int, duration time.Duration) {
	backendRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	if duration < 0 {
		duration = 0
	}
	backendRequestSeconds.WithLabelValues(route).Observe(duration.Seconds())
}
