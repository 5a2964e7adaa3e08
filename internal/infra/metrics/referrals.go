package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(referralCommissionTransitions) }

var referralCommissionTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "referral_commission_transitions_total",
		Help: "Commission lifecycle transitions applied through the admin API.",
	},
	[]string{"action"}, // 'confirmed', 'paid', 'expired'
)

func IncCommissionTransition(action string) {
	referralCommissionTransitions.WithLabelValues(norm(action)).Inc()
}
