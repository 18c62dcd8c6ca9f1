package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(engineCallSeconds, engineLoadsTotal) }

var (
	engineCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voxbridge_engine_call_seconds",
			Help:    "Engine call latency by engine, operation, and success.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 180, 600},
		},
		[]string{"engine", "operation", "success"},
	)

	engineLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxbridge_engine_loads_total",
			Help: "Engine acquisition attempts by engine and result.",
		},
		[]string{"engine", "result"}, // loaded, skipped, failed
	)
)

func ObserveEngineCall(engine, operation string, elapsed time.Duration, success bool) {
	engineCallSeconds.WithLabelValues(norm(engine), norm(operation), strconv.FormatBool(success)).Observe(elapsed.Seconds())
}

func IncEngineLoad(engine, result string) {
	engineLoadsTotal.WithLabelValues(norm(engine), norm(result)).Inc()
}
