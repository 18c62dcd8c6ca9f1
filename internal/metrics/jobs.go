package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsTotal, runsTotal) }

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxbridge_jobs_total",
			Help: "Conversion jobs reaching a terminal state, by status and failure kind.",
		},
		[]string{"status", "kind"},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxbridge_queue_runs_total",
			Help: "Queue runs finished, by whether they were cancelled.",
		},
		[]string{"cancelled"},
	)
)

func IncJob(status, kind string) {
	jobsTotal.WithLabelValues(norm(status), norm(kind)).Inc()
}

func IncRun(cancelled bool) {
	label := "false"
	if cancelled {
		label = "true"
	}
	runsTotal.WithLabelValues(label).Inc()
}
