package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dispatchTasksTotal, dispatchInflight, dispatchPending, continuationsTotal) }

var (
	dispatchTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxbridge_dispatch_tasks_total",
			Help: "Dispatcher tasks finished, by lane and outcome.",
		},
		[]string{"lane", "outcome"}, // ok, error, cancelled, panic
	)

	dispatchInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "voxbridge_dispatch_inflight",
			Help: "Worker slots currently running a blocking call.",
		},
	)

	dispatchPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "voxbridge_dispatch_pending",
			Help: "Tasks waiting for a free worker or lane.",
		},
	)

	continuationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voxbridge_continuations_total",
			Help: "Continuations executed by the consumer loop.",
		},
	)
)

func IncDispatchTask(lane, outcome string) {
	dispatchTasksTotal.WithLabelValues(norm(lane), norm(outcome)).Inc()
}

func SetDispatchInflight(n int) { dispatchInflight.Set(float64(n)) }

func SetDispatchPending(n int) { dispatchPending.Set(float64(n)) }

func AddContinuations(n int) { continuationsTotal.Add(float64(n)) }
