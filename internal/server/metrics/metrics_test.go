package metrics

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "otp_mismatch", Outcome(fmt.Errorf("verify: %w", common.ErrOtpMismatch)))
	assert.Equal(t, "internal", Outcome(errors.New("db down")))
}

func TestCounters(t *testing.T) {
	m := New()

	m.PairIssued()
	m.PairIssued()
	m.Rotation(nil)
	m.Rotation(common.ErrTokenRevokedOrUnknown)
	m.Resolution(common.ErrNoValidRefreshToken)
	m.OTPSent(common.ErrDeliveryFailed.With("smtp", errors.New("down")))
	m.OTPVerified(nil)
	m.DeliveryFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PairsIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rotations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rotations.WithLabelValues("token_revoked_or_unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("no_valid_refresh_token")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OTPSends.WithLabelValues("delivery_failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DeliveryFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OTPVerifications.WithLabelValues("ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PairIssued()
		m.Rotation(nil)
		m.Resolution(nil)
		m.OTPSent(nil)
		m.OTPVerified(nil)
		m.DeliveryFailed()
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.PairIssued()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "gophauth_token_pairs_issued_total 1")
}
