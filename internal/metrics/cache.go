package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal, cacheWritesTotal) }

var (
	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxbridge_cache_requests_total",
			Help: "Transcription cache lookups by result.",
		},
		[]string{"result"}, // hit, miss
	)

	cacheWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxbridge_cache_writes_total",
			Help: "Transcription cache writes by outcome.",
		},
		[]string{"outcome"}, // stored, failed
	)
)

func IncCacheRequest(result string) {
	cacheRequestsTotal.WithLabelValues(norm(result)).Inc()
}

func IncCacheWrite(outcome string) {
	cacheWritesTotal.WithLabelValues(norm(outcome)).Inc()
}
