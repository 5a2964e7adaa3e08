package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by verdict (confirmed/pending/failed/underpaid).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Total display-unit value of confirmed payments, labeled by token symbol.",
		},
		[]string{"token"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

// AddPaymentRevenue accepts the decimal-string amount used everywhere else
// in the system; unparseable input is dropped rather than poisoning the
// counter.
func AddPaymentRevenue(token, amount string) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return
	}
	f, _ := d.Float64()
	paymentsRevenueTotal.WithLabelValues(norm(token)).Add(f)
}
