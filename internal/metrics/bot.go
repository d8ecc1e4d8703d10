package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(botUpdates, broadcastSent)
}

var (
	botUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnshop_bot_updates_total",
			Help: "Telegram updates handled, by kind.",
		},
		[]string{"kind"},
	)

	broadcastSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnshop_broadcast_messages_total",
			Help: "Broadcast deliveries by result.",
		},
		[]string{"result"},
	)
)

func IncBotUpdate(kind string) {
	botUpdates.WithLabelValues(norm(kind)).Inc()
}

func IncBroadcast(ok bool) {
	if ok {
		broadcastSent.WithLabelValues("sent").Inc()
		return
	}
	broadcastSent.WithLabelValues("failed").Inc()
}
