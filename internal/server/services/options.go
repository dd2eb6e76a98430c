// Package services contains server-side business logic: the token lifecycle
// manager, the OTP verification manager and the account flows built on them.
package services

import (
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
)

type options struct {
	now     common.Clock
	logger  logging.Logger
	metrics *metrics.Metrics
}

// Option customises a service at construction.
type Option func(*options)

// WithClock pins the time source. Defaults to common.SystemClock.
func WithClock(now common.Clock) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records outcomes on m. Without it nothing is recorded.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{now: common.SystemClock, logger: logging.Nop{}}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
