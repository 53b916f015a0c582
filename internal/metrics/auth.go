package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Auth-related Prometheus metrics. Defined in a standalone package so the
// service and HTTP layers can share them without import cycles.

var (
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_attempts_total",
		Help: "Intentos de login por resultado",
	}, []string{"result"}) // ok | user_not_found | wrong_password | error

	OTPChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_otp_checks_total",
		Help: "Verificaciones de OTP por operación y resultado",
	}, []string{"op", "result"}) // op: setup|verify; result: ok|invalid|replay

	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_device_sessions_created_total",
		Help: "Sesiones de dispositivo creadas",
	})

	SessionsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_device_sessions_deleted_total",
		Help: "Sesiones de dispositivo eliminadas (logout)",
	})

	QRCodesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_qr_codes_issued_total",
		Help: "Códigos QR de provisioning emitidos",
	})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_ms",
		Help:    "Duración de requests HTTP en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"method", "status"})
)

// Register registers the auth metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		LoginAttempts,
		OTPChecks,
		SessionsCreated,
		SessionsDeleted,
		QRCodesIssued,
		HTTPDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
