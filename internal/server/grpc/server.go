package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// TokenManager is the part of services.TokenService used by the transport.
type TokenManager interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
	RotateRefreshToken(ctx context.Context, oldToken string) (*services.TokenPair, error)
}

// OTPManager is the part of services.OTPService used by the transport.
type OTPManager interface {
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (*models.ResetToken, error)
}

// AccountManager is the part of services.AccountService used by the transport.
type AccountManager interface {
	Register(ctx context.Context, kind models.PrincipalKind, email, name, password string) (*models.Principal, *services.TokenPair, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	ResetPassword(ctx context.Context, email, resetToken, newPassword string) error
}

// RateLimiter decides whether one more call under key is allowed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type GRPCServer struct {
	address  string
	logger   logging.Logger
	tokens   TokenManager
	otp      OTPManager
	accounts AccountManager
	limiter  RateLimiter
	health   *health.Server
}

// Option configures optional GRPCServer collaborators.
type Option func(*GRPCServer)

// WithRateLimiter throttles the unauthenticated entry points per client.
// A nil limiter leaves them unthrottled.
func WithRateLimiter(l RateLimiter) Option {
	return func(s *GRPCServer) { s.limiter = l }
}

func NewGRPCServer(a string, l logging.Logger, tokens TokenManager, otp OTPManager, accounts AccountManager, opts ...Option) *GRPCServer {
	s := &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		tokens:   tokens,
		otp:      otp,
		accounts: accounts,
		health:   health.NewServer(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.rateLimitInterceptor, s.accessTokenInterceptor))

	RegisterAuthServiceServer(srv, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping gRPC server...")
			s.health.Shutdown()
			srv.GracefulStop()
		case <-done:
		}
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	return srv.Serve(lis)
}
