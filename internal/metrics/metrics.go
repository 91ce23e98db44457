package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector agrega contadores Prometheus del núcleo de autenticación.
type Collector struct {
	loginAttempts *prometheus.CounterVec
	otpIssued     prometheus.Counter
	otpRejected   prometheus.Counter
}

// NewCollector registra los contadores en el registry entregado.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "machikado_auth_login_attempts_total",
			Help: "Intentos de login por provider y resultado.",
		}, []string{"provider", "outcome"}),
		otpIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "machikado_auth_otp_issued_total",
			Help: "Códigos OTP emitidos.",
		}),
		otpRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "machikado_auth_otp_rejected_total",
			Help: "Verificaciones de OTP rechazadas.",
		}),
	}
	reg.MustRegister(c.loginAttempts, c.otpIssued, c.otpRejected)
	return c
}

func (c *Collector) RecordLoginAttempt(provider, outcome string) {
	c.loginAttempts.WithLabelValues(provider, outcome).Inc()
}

func (c *Collector) RecordOTPIssued() {
	c.otpIssued.Inc()
}

func (c *Collector) RecordOTPRejected() {
	c.otpRejected.Inc()
}

// Handler expone el endpoint /metrics para el registry entregado.
func Handler(reg *prometheus.Registry) gin.HandlerFunc {
	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
