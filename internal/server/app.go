// Package server initializes and runs the auth server: it wires storage,
// delivery and services, serves gRPC and Prometheus metrics, and shuts down
// gracefully on SIGINT/SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/config"

	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	closeLog   func() error
	deps       *Deps
	shutdownTO time.Duration
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, closeLog, err := logging.New(logging.Options{
		Backend: c.LogBackend,
		Format:  c.LogFormat,
		Level:   c.LogLevel,
		File:    c.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	logger.Info(ctx, "Loaded configuration", "config", c)

	deps, err := Open(ctx, c, logger, DepsOptions{Async: true})
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	if err := deps.Migrate(ctx); err != nil {
		_ = deps.Close(ctx)
		_ = closeLog()
		return nil, err
	}

	return &App{config: c, logger: logger, closeLog: closeLog, deps: deps, shutdownTO: 10 * time.Second}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.deps.Tokens, app.deps.OTP, app.deps.Accounts,
		gs.WithRateLimiter(app.deps.Limiter))

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.deps.Metrics.Handler())

	srv := &http.Server{
		Addr:              app.config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTO)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	if app.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startMetricsServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTO)
	defer cancel()
	if err := app.deps.Close(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "shutdown error", "error", err.Error())
	}

	app.logger.Info(shutdownCtx, "App stopped")
	_ = app.closeLog()
}
