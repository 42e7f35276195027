package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	ConnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailauth_service",
			Name:      "connect_attempts_total",
			Help:      "Total number of mail connect attempts",
		},
		[]string{"provider", "outcome"}, // success, auth_cancelled, auth_timeout, grant_invalid, ...
	)

	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailauth_service",
			Name:      "token_refresh_total",
			Help:      "Total number of silent token refreshes",
		},
		[]string{"provider", "outcome"}, // success, ineligible, denied
	)

	MailSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailauth_service",
			Name:      "mail_send_total",
			Help:      "Total number of delegated mail sends",
		},
		[]string{"provider", "status"},
	)
)
