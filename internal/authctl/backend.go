package authctl

import (
	"context"
	"io"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Backend is what the commands need from the wired services.
type Backend interface {
	Migrate(ctx context.Context) error
	CreatePrincipal(ctx context.Context, kind models.PrincipalKind, email, name, password string) (*models.Principal, error)
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (*models.ResetToken, error)
	Sweep(ctx context.Context) (otps, resets int64, err error)
	Close(ctx context.Context) error
}

// OpenFunc builds a Backend for cfg. Codes printed by the console sender go
// to console.
type OpenFunc func(ctx context.Context, cfg *config.Config, verbose bool, console io.Writer) (Backend, error)

type depsBackend struct {
	deps     *server.Deps
	closeLog func() error
}

func openDeps(ctx context.Context, cfg *config.Config, verbose bool, console io.Writer) (Backend, error) {
	level := "error"
	if verbose {
		level = "debug"
	}
	opts := logging.Options{
		Backend: cfg.LogBackend,
		Format:  "text",
		Level:   level,
		File:    cfg.LogFile,
	}
	if cfg.LogFile == "" {
		// stdout carries command output and console codes
		opts.Output = os.Stderr
	}
	logger, closeLog, err := logging.New(opts)
	if err != nil {
		return nil, err
	}

	deps, err := server.Open(ctx, cfg, logger, server.DepsOptions{Console: console})
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	return &depsBackend{deps: deps, closeLog: closeLog}, nil
}

func (b *depsBackend) Migrate(ctx context.Context) error { return b.deps.Migrate(ctx) }

func (b *depsBackend) CreatePrincipal(ctx context.Context, kind models.PrincipalKind, email, name, password string) (*models.Principal, error) {
	p, _, err := b.deps.Accounts.Register(ctx, kind, email, name, password)
	return p, err
}

func (b *depsBackend) SendOTP(ctx context.Context, email string) error {
	return b.deps.OTP.SendOTP(ctx, email)
}

func (b *depsBackend) VerifyOTP(ctx context.Context, email, code string) (*models.ResetToken, error) {
	return b.deps.OTP.VerifyOTP(ctx, email, code)
}

func (b *depsBackend) Sweep(ctx context.Context) (int64, int64, error) {
	return b.deps.OTP.Sweep(ctx)
}

func (b *depsBackend) Close(ctx context.Context) error {
	err := b.deps.Close(ctx)
	_ = b.closeLog()
	return err
}
