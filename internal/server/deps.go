package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/delivery"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/ratelimit"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/otps"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

// Deps holds the collaborators shared by the server and the operator CLI.
type Deps struct {
	Config   *config.Config
	Logger   logging.Logger
	DB       *sql.DB
	Repos    *repomanager.PostgresRepositoryManager
	Metrics  *metrics.Metrics
	Tokens   *services.TokenService
	OTP      *services.OTPService
	Accounts *services.AccountService

	// Limiter is nil when rate limiting is disabled.
	Limiter ratelimit.Limiter

	async   *delivery.AsyncSender
	closers []func() error
}

// DepsOptions tunes how Open wires delivery.
type DepsOptions struct {
	// Async queues OTP deliveries to a background worker.
	Async bool
	// Console receives codes when no SMTP host is configured.
	Console io.Writer
}

// newSender picks SMTP when a host is configured, the console otherwise.
func newSender(cfg *config.Config, console io.Writer) delivery.Sender {
	if cfg.SMTPHost == "" {
		if console == nil {
			console = os.Stdout
		}
		return delivery.NewWriterSender(console)
	}
	return delivery.NewSMTPSender(delivery.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		Validity: cfg.OTPValidityDuration,
	})
}

// newLimiter shares Redis with the OTP store when one is configured, so the
// window holds across server instances. Otherwise counts stay in process.
func newLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func() error, error) {
	if cfg.RateLimit <= 0 {
		return nil, nil, nil
	}
	if cfg.OTPStore != "redis" {
		return ratelimit.NewMemoryLimiter(cfg.RateLimit, cfg.RateLimitWindow), nil, nil
	}
	l, err := ratelimit.NewRedisLimiter(ctx, ratelimit.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.RateLimit, cfg.RateLimitWindow)
	if err != nil {
		return nil, nil, err
	}
	return l, l.Close, nil
}

// Open connects to PostgreSQL (and Redis when configured) and builds the
// services. Migrations are not run here.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger, o DepsOptions) (*Deps, error) {

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	d := &Deps{Config: cfg, Logger: logger, DB: db, Metrics: metrics.New()}
	d.closers = append(d.closers, db.Close)

	var repoOpts []repomanager.Option
	if cfg.OTPStore == "redis" {
		store, err := otps.NewRedisStore(ctx, otps.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			_ = d.Close(ctx)
			return nil, err
		}
		d.closers = append(d.closers, store.Close)
		repoOpts = append(repoOpts, repomanager.WithOTPStore(store))
		logger.Info(ctx, "Using Redis OTP store", "addr", cfg.RedisAddr)
	}
	d.Repos = repomanager.NewPostgresRepositoryManager(repoOpts...)

	limiter, closeLimiter, err := newLimiter(ctx, cfg)
	if err != nil {
		_ = d.Close(ctx)
		return nil, err
	}
	if closeLimiter != nil {
		d.closers = append(d.closers, closeLimiter)
	}
	d.Limiter = limiter

	sender := newSender(cfg, o.Console)
	if o.Async {
		d.async = delivery.NewAsyncSender(sender, cfg.MailQueue, logger, d.Metrics)
		sender = d.async
	}

	opts := []services.Option{services.WithLogger(logger), services.WithMetrics(d.Metrics)}
	d.Tokens = services.NewTokenService(db, d.Repos, cfg, opts...)
	d.OTP = services.NewOTPService(db, d.Repos, sender, cfg, opts...)
	d.Accounts = services.NewAccountService(db, d.Repos, d.Tokens, d.OTP, opts...)

	return d, nil
}

// Migrate applies the embedded schema migrations.
func (d *Deps) Migrate(ctx context.Context) error {
	if err := d.Repos.RunMigrations(ctx, d.DB); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// Close drains pending deliveries and releases connections.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	if d.async != nil {
		errs = append(errs, d.async.Close(ctx))
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}
