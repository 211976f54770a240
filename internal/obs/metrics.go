package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AuthRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passage_auth_rejections_total",
		Help: "Requests rejected by the auth middleware, by reason.",
	}, []string{"reason"})

	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passage_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passage_token_refreshes_total",
		Help: "Refresh token rotations by outcome.",
	}, []string{"outcome"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "passage_http_request_duration_seconds",
		Help:    "HTTP handler latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)
