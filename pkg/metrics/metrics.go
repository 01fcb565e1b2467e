package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "mapster", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "mapster", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	// AuthFailures counts rejected credentials by reason
	// (invalid_signature, expired, session_not_found, session_expired, bad_credentials).
	AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "mapster", Name: "auth_failures_total", Help: "Number of failed authentication attempts by reason."},
		[]string{"reason"},
	)
	SessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "mapster", Name: "sessions_created_total", Help: "Number of refresh sessions created."},
	)
	AccessTokensIssued = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "mapster", Name: "access_tokens_issued_total", Help: "Number of access tokens issued."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed, RateLimitRejected, AuthFailures, SessionsCreated, AccessTokensIssued)
}
