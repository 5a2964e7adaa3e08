package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		chainVerificationsTotal,
		chainVerifyDuration,
	)
}

var (
	// Verdicts per chain. status: not_found|pending|failed|underpaid|confirmed|error
	chainVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_verifications_total",
			Help: "Chain verifier verdicts by chain id and status.",
		},
		[]string{"chain", "status"},
	)

	chainVerifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chain_verify_duration_seconds",
			Help:    "Duration of one verification poll against a chain RPC endpoint.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"chain"},
	)
)

func ObserveVerification(chain, status string, seconds float64) {
	chainVerificationsTotal.WithLabelValues(norm(chain), norm(status)).Inc()
	chainVerifyDuration.WithLabelValues(norm(chain)).Observe(seconds)
}
