package notifications

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var deliveries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Notification deliveries by channel and outcome",
	},
	[]string{"channel", "outcome"},
)

func recordDelivery(channel, outcome string) {
	deliveries.WithLabelValues(channel, outcome).Inc()
}
