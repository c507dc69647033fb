package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login decision outcomes
const (
	OutcomeAllowed    = "allowed"
	OutcomeLocked     = "locked"
	OutcomeDenied     = "denylisted"
	OutcomeSafelisted = "safelisted"
	OutcomeThreshold  = "threshold"
	OutcomeFailOpen   = "fail_open"
)

// Metrics holds the protection service collectors. A nil *Metrics is a no-op.
type Metrics struct {
	LoginDecisions      *prometheus.CounterVec
	LockoutsCreated     prometheus.Counter
	CredentialAuth      *prometheus.CounterVec
	RateLimitRejections prometheus.Counter
	StoreErrors         *prometheus.CounterVec
	CheckDuration       prometheus.Histogram
	AuthenticateLatency prometheus.Histogram
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LoginDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "isotone_login_decisions_total",
			Help: "Brute force decisions by outcome",
		}, []string{"outcome"}),
		LockoutsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "isotone_lockouts_created_total",
			Help: "Lockouts placed after the failure threshold was crossed",
		}),
		CredentialAuth: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "isotone_credential_auth_total",
			Help: "API credential authentications by result",
		}, []string{"result"}),
		RateLimitRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "isotone_rate_limit_rejections_total",
			Help: "Requests rejected by the per-credential sliding window",
		}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "isotone_store_errors_total",
			Help: "Store failures by component",
		}, []string{"component"}),
		CheckDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "isotone_login_check_duration_seconds",
			Help:    "Duration of brute force checks",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		AuthenticateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "isotone_credential_auth_duration_seconds",
			Help:    "Duration of API credential authentication, dominated by bcrypt",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "isotone_http_requests_total",
			Help: "HTTP requests by method, route pattern and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "isotone_http_request_duration_seconds",
			Help:    "HTTP request duration by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) IncLoginDecision(outcome string) {
	if m == nil {
		return
	}
	m.LoginDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncLockoutCreated() {
	if m == nil {
		return
	}
	m.LockoutsCreated.Inc()
}

func (m *Metrics) IncCredentialAuth(result string) {
	if m == nil {
		return
	}
	m.CredentialAuth.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRateLimitRejection() {
	if m == nil {
		return
	}
	m.RateLimitRejections.Inc()
}

func (m *Metrics) IncStoreError(component string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(component).Inc()
}

func (m *Metrics) ObserveCheck(start time.Time) {
	if m == nil {
		return
	}
	m.CheckDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveAuthenticate(start time.Time) {
	if m == nil {
		return
	}
	m.AuthenticateLatency.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}
