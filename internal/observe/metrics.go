package observe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campuswatch",
		Subsystem: "observe",
		Name:      "notifications_total",
		Help:      "Delivered notifications by transition kind.",
	}, []string{"kind"})

	unsubscribesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "campuswatch",
		Subsystem: "observe",
		Name:      "unsubscribes_total",
		Help:      "Watchers removed after permanent delivery failures.",
	})
)
