/**
 * @description
 * Prometheus instrumentation for authentication, upstream calls and upload cleanup.
 *
 * @dependencies
 * - github.com/prometheus/client_golang
 *
 * @notes
 * - All methods are nil-safe so components can run without metrics in tests.
 */

package services

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	signatureChecks *prometheus.CounterVec
	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	cleanupFailures prometheus.Counter
}

// NewMetrics registers the service collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		signatureChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitalchain",
			Name:      "signature_checks_total",
			Help:      "Login signature verifications by wallet type and outcome.",
		}, []string{"wallet_type", "outcome"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitalchain",
			Name:      "ai_requests_total",
			Help:      "AI provider analysis requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vitalchain",
			Name:      "ai_request_duration_seconds",
			Help:      "AI provider analysis latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"kind"}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vitalchain",
			Name:      "upload_cleanup_failures_total",
			Help:      "Temp upload files that could not be removed.",
		}),
	}
	reg.MustRegister(m.signatureChecks, m.upstreamCalls, m.upstreamLatency, m.cleanupFailures)
	return m
}

func (m *Metrics) observeSignatureCheck(walletType WalletType, err error) {
	if m == nil {
		return
	}
	m.signatureChecks.WithLabelValues(string(walletType), signatureOutcome(err)).Inc()
}

func (m *Metrics) observeAnalysis(kind string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.upstreamCalls.WithLabelValues(kind, outcome).Inc()
	m.upstreamLatency.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// CleanupFailed counts a temp upload that could not be removed.
func (m *Metrics) CleanupFailed(path string, err error) {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}

func signatureOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrLoginExpired), errors.Is(err, ErrMissingTimestamp):
		return "expired"
	case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInvalidSignatureFormat):
		return "malformed"
	case errors.Is(err, ErrVerifierUnavailable):
		return "unavailable"
	default:
		return "rejected"
	}
}
