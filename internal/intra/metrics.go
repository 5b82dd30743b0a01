package intra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campuswatch",
		Subsystem: "intra",
		Name:      "requests_total",
		Help:      "Upstream API requests by terminal outcome.",
	}, []string{"outcome"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "campuswatch",
		Subsystem: "intra",
		Name:      "retries_total",
		Help:      "Attempts consumed by transient failures (429, malformed bodies, transport errors).",
	})

	tokenRefreshTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "campuswatch",
		Subsystem: "intra",
		Name:      "token_refresh_total",
		Help:      "Credential token refreshes triggered by expired-token responses.",
	})
)
