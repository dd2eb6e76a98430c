package grpc

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// protectedMethods require a valid access token.
var protectedMethods = map[string]bool{
	FullMethod("Me"): true,
}

// rateLimitedMethods are the entry points a client can brute-force without
// holding a token.
var rateLimitedMethods = map[string]bool{
	FullMethod("Register"):      true,
	FullMethod("Login"):         true,
	FullMethod("SendOTP"):       true,
	FullMethod("VerifyOTP"):     true,
	FullMethod("ResetPassword"): true,
}

// ClaimsFromContext returns the access-token claims stored by the interceptor.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(common.AuthorizationHeaderName)
	if len(values) == 0 {
		return ""
	}
	v := values[0]
	if len(v) < len(common.BearerPrefix) || !strings.EqualFold(v[:len(common.BearerPrefix)], common.BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(common.BearerPrefix):])
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	if protectedMethods[info.FullMethod] {

		accessToken := bearerToken(ctx)
		if accessToken == "" {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		claims, err := s.tokens.ValidateAccessToken(accessToken)
		if err != nil {
			return nil, s.toStatus(ctx, info.FullMethod, err)
		}

		ctx = context.WithValue(ctx, claimsKey, claims)
	}

	return handler(ctx, req)
}

// clientHost identifies the caller by peer host. The port is dropped since
// it changes with every connection.
func clientHost(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (s *GRPCServer) rateLimitInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	if s.limiter == nil || !rateLimitedMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	host := clientHost(ctx)
	ok, err := s.limiter.Allow(ctx, info.FullMethod+"|"+host)
	if err != nil {
		// fail open: an unreachable limiter must not lock every client out
		s.logger.Warn(ctx, "rate limiter unavailable", "method", info.FullMethod, "error", err)
		return handler(ctx, req)
	}
	if !ok {
		return nil, s.toStatus(ctx, info.FullMethod, common.ErrRateLimited.With("client "+host, nil))
	}

	return handler(ctx, req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug(ctx, "request handled",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start))
	return resp, err
}
