package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ConfirmRequests,
		ConfirmDuration,
	)
}

var (
	// Count of confirm calls grouped by result and bounded reason.
	// result: confirmed|pending|failed|refused|invalid|error
	// reason (refused/failed only): LINK_NOT_FOUND|LINK_DISABLED|... or "none"
	ConfirmRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paylink_confirm_requests_total",
			Help: "Count of payment confirm calls by result and reason.",
		},
		[]string{"result", "reason"},
	)

	// Latency of the confirm pipeline grouped by result. Buckets are wide
	// because the pipeline polls an external RPC endpoint.
	ConfirmDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paylink_confirm_duration_seconds",
			Help:    "Duration of the payment confirm pipeline in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"result"},
	)
)
