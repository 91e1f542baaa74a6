// Package metrics defines the Prometheus metrics of the task tracker API.
// All metrics register with the default registry on package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tasktracker"

// AuthRejectionsTotal counts requests turned away by the session middleware.
// Label reason: missing_token, token_invalid, token_expired, token_revoked, actor_not_found.
var AuthRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_rejections_total",
		Help:      "Total number of requests rejected by the session middleware.",
	},
	[]string{"reason"},
)

// LoginAttemptsTotal counts login attempts by result (success, invalid_credentials, error).
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// TokensIssuedTotal counts issued session tokens by origin (login, refresh).
var TokensIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of session tokens issued, by origin.",
	},
	[]string{"origin"},
)

// PolicyDenialsTotal counts access policy denials.
var PolicyDenialsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "policy_denials_total",
		Help:      "Total number of access policy denials, by action and reason.",
	},
	[]string{"action", "reason"},
)

// HTTPRequestDuration measures handler latency.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests, by method, route and status.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)
