package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcomes.
const (
	LoginSuccess      = "success"
	LoginFailed       = "failed"
	LoginMFARequired  = "mfa_required"
	LoginRateLimited  = "rate_limited"
	LoginInvalidInput = "invalid_input"
)

type Collector struct {
	requests        *prometheus.CounterVec
	duration        prometheus.Histogram
	logins          *prometheus.CounterVec
	denials         *prometheus.CounterVec
	sessionsRevoked prometheus.Counter
	rejectedTokens  prometheus.Counter
}

func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hrportal_http_requests_total",
			Help: "HTTP responses by status code.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hrportal_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hrportal_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hrportal_role_denials_total",
			Help: "Requests refused because the caller's role is not allowed.",
		}, []string{"role"}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hrportal_sessions_revoked_total",
			Help: "Sessions ended by logout.",
		}),
		rejectedTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hrportal_rejected_tokens_total",
			Help: "Bearer tokens rejected as missing, invalid, expired or revoked.",
		}),
	}
	reg.MustRegister(c.requests, c.duration, c.logins, c.denials, c.sessionsRevoked, c.rejectedTokens)
	return c
}

func (c *Collector) Record(status int, duration time.Duration) {
	c.requests.WithLabelValues(strconv.Itoa(status)).Inc()
	c.duration.Observe(duration.Seconds())
}

func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordRoleDenied(role string) {
	if role == "" {
		role = "none"
	}
	c.denials.WithLabelValues(role).Inc()
}

func (c *Collector) RecordSessionRevoked() {
	c.sessionsRevoked.Inc()
}

func (c *Collector) RecordRejectedToken() {
	c.rejectedTokens.Inc()
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
