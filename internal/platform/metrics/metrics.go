package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the auth core.
type Metrics struct {
	LoginSuccesses   *prometheus.CounterVec
	AuthFailures     prometheus.Counter
	OtpIssued        *prometheus.CounterVec
	OtpVerifications *prometheus.CounterVec
	SessionsIssued   prometheus.Counter
	SessionsRevoked  prometheus.Counter
	DeliveryFailures prometheus.Counter
	UsersRegistered  prometheus.Counter
	OperationLatency *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		LoginSuccesses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keyline_login_successes_total",
			Help: "Successful logins, labeled by auth method",
		}, []string{"method"}),
		AuthFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "keyline_auth_failures_total",
			Help: "Total number of authentication failures",
		}),
		OtpIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keyline_otp_issued_total",
			Help: "OTP challenges issued, labeled by purpose and channel",
		}, []string{"purpose", "channel"}),
		OtpVerifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keyline_otp_verifications_total",
			Help: "OTP verification attempts, labeled by outcome",
		}, []string{"outcome"}),
		SessionsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "keyline_sessions_issued_total",
			Help: "Total number of sessions issued",
		}),
		SessionsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "keyline_sessions_revoked_total",
			Help: "Total number of sessions revoked",
		}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "keyline_otp_delivery_failures_total",
			Help: "OTP dispatches that failed at the delivery channel",
		}),
		UsersRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "keyline_users_registered_total",
			Help: "Total number of self-registered users",
		}),
		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keyline_auth_operation_latency_seconds",
			Help:    "Latency of auth core operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}
