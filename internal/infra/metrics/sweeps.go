package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionsPastDueTotal,
		installmentPlansSuspendedTotal,
		sweepRunsTotal,
	)
}

var (
	subscriptionsPastDueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_past_due_total",
			Help: "Subscriptions moved to past_due by the due sweep.",
		},
	)

	installmentPlansSuspendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "installment_plans_suspended_total",
			Help: "Installment plans suspended by the overdue sweep.",
		},
	)

	// Sweep executions by task and outcome, outcome: ok|error.
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Periodic sweep executions by task and outcome.",
		},
		[]string{"task", "outcome"},
	)
)

func IncSubscriptionsPastDue(count int) {
	subscriptionsPastDueTotal.Add(float64(count))
}

func IncInstallmentPlansSuspended(count int) {
	installmentPlansSuspendedTotal.Add(float64(count))
}

func IncSweepRun(task string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	sweepRunsTotal.WithLabelValues(norm(task), outcome).Inc()
}
