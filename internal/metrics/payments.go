package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		paymentsInitiated,
		paymentsOutcome,
		paymentPolls,
		activePolls,
		provisioningTotal,
		pollDuration,
	)
}

var (
	paymentsInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnshop_payments_initiated_total",
			Help: "Payments opened, by mode (gateway/test) and result.",
		},
		[]string{"mode", "result"},
	)

	paymentsOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnshop_payments_outcome_total",
			Help: "Payments that reached a terminal status.",
		},
		[]string{"status"},
	)

	paymentPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnshop_payment_polls_total",
			Help: "Gateway status queries by normalized remote status.",
		},
		[]string{"remote_status"},
	)

	activePolls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vpnshop_payment_active_polls",
			Help: "Payments currently being polled.",
		},
	)

	provisioningTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnshop_provisioning_total",
			Help: "VPN account provisioning attempts by result.",
		},
		[]string{"result"},
	)

	pollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vpnshop_payment_poll_duration_seconds",
			Help:    "Time from payment creation to terminal status.",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		},
	)
)

func IncPaymentInitiated(mode, result string) {
	paymentsInitiated.WithLabelValues(norm(mode), norm(result)).Inc()
}

func IncPaymentOutcome(status string) {
	paymentsOutcome.WithLabelValues(norm(status)).Inc()
}

func IncPaymentPoll(remoteStatus string) {
	paymentPolls.WithLabelValues(norm(remoteStatus)).Inc()
}

func PollStarted()  { activePolls.Inc() }
func PollFinished() { activePolls.Dec() }

func IncProvisioning(success bool) {
	if success {
		provisioningTotal.WithLabelValues("succeeded").Inc()
		return
	}
	provisioningTotal.WithLabelValues("failed").Inc()
}

func ObservePollDuration(seconds float64) {
	pollDuration.Observe(seconds)
}
