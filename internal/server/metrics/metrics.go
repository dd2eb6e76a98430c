// Package metrics exposes Prometheus counters for the token and OTP flows.
package metrics

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	PairsIssued      prometheus.Counter
	Rotations        *prometheus.CounterVec
	Resolutions      *prometheus.CounterVec
	OTPSends         *prometheus.CounterVec
	OTPVerifications *prometheus.CounterVec
	DeliveryFailures prometheus.Counter
}

// New registers the counters on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PairsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "gophauth_token_pairs_issued_total",
			Help: "Total number of access/refresh pairs minted",
		}),
		Rotations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gophauth_refresh_rotations_total",
			Help: "Refresh token rotations by outcome",
		}, []string{"outcome"}),
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gophauth_refresh_resolutions_total",
			Help: "Access tokens minted from a stored refresh token, by outcome",
		}, []string{"outcome"}),
		OTPSends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gophauth_otp_sends_total",
			Help: "OTP send requests by outcome",
		}, []string{"outcome"}),
		OTPVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gophauth_otp_verifications_total",
			Help: "OTP verifications by outcome",
		}, []string{"outcome"}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "gophauth_delivery_failures_total",
			Help: "OTP deliveries that failed",
		}),
	}
}

// Outcome maps err to a low-cardinality label: "ok", an error kind, or
// "internal".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var e *common.Error
	if errors.As(err, &e) {
		return string(e.Kind)
	}
	return "internal"
}

func (m *Metrics) PairIssued() {
	if m == nil {
		return
	}
	m.PairsIssued.Inc()
}

func (m *Metrics) Rotation(err error) {
	if m == nil {
		return
	}
	m.Rotations.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) Resolution(err error) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) OTPSent(err error) {
	if m == nil {
		return
	}
	m.OTPSends.WithLabelValues(Outcome(err)).Inc()
	if errors.Is(err, common.ErrDeliveryFailed) {
		m.DeliveryFailed()
	}
}

// DeliveryFailed counts a code that never reached its recipient, whether the
// send failed inline or in the background worker.
func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.DeliveryFailures.Inc()
}

func (m *Metrics) OTPVerified(err error) {
	if m == nil {
		return
	}
	m.OTPVerifications.WithLabelValues(Outcome(err)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
