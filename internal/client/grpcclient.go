package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/common"
	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn

	mu           sync.Mutex
	accessToken  string
	refreshToken string

	// refreshMu serializes rotations. The server accepts a refresh token
	// once, so two concurrent rotations would revoke each other's session.
	refreshMu sync.Mutex
}

var _ Client = (*GRPCClient)(nil)

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) setTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = access
	s.refreshToken = refresh
}

// Tokens returns the current access and refresh tokens.
func (s *GRPCClient) Tokens() (access, refresh string) { return s.tokens() }

// SetTokens installs a previously obtained pair.
func (s *GRPCClient) SetTokens(access, refresh string) { s.setTokens(access, refresh) }

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	access, refresh := s.tokens()
	if access == "" {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)

	if err == nil || refresh == "" || method == gs.FullMethod("Refresh") {
		return err
	}
	if kind, ok := gs.KindFromError(err); !ok || kind != common.KindExpired {
		return err
	}

	if err := s.refreshStale(ctx, access); err != nil {
		return err
	}

	// tokens refreshed, retrying with the new access token
	access, _ = s.tokens()
	return invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
}

// NewGRPCClient connects to endpointURL. Extra dial options are appended to
// the defaults (insecure transport, token interceptor).
func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := s.conn.Invoke(ctx, gs.FullMethod(method), in, out); err != nil {
		return nil, s.mapError(err)
	}
	return out, nil
}

func field(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func (s *GRPCClient) storePair(out *structpb.Struct) {
	s.setTokens(field(out, "access_token"), field(out, "refresh_token"))
}

// Register creates an account and keeps its first token pair. It returns
// the new principal id.
func (s *GRPCClient) Register(ctx context.Context, kind, email, name, password string) (string, error) {
	out, err := s.call(ctx, "Register", map[string]any{
		"kind": kind, "email": email, "name": name, "password": password,
	})
	if err != nil {
		return "", err
	}
	s.storePair(out)
	return field(out, "id"), nil
}

func (s *GRPCClient) Login(ctx context.Context, email, password string) error {
	out, err := s.call(ctx, "Login", map[string]any{"email": email, "password": password})
	if err != nil {
		return err
	}
	s.storePair(out)
	return nil
}

// refreshStale rotates the pair unless another call already replaced the
// stale access token while this one waited for its turn.
func (s *GRPCClient) refreshStale(ctx context.Context, stale string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if access, _ := s.tokens(); access != stale {
		return nil
	}
	return s.refresh(ctx)
}

// Refresh rotates the stored refresh token.
func (s *GRPCClient) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.refresh(ctx)
}

func (s *GRPCClient) refresh(ctx context.Context) error {
	_, refresh := s.tokens()
	if refresh == "" {
		return ErrNotLoggedIn
	}
	out, err := s.call(ctx, "Refresh", map[string]any{"refresh_token": refresh})
	if err != nil {
		return err
	}
	s.storePair(out)
	return nil
}

func (s *GRPCClient) SendOTP(ctx context.Context, email string) error {
	_, err := s.call(ctx, "SendOTP", map[string]any{"email": email})
	return err
}

// VerifyOTP returns the reset token issued for a correct code.
func (s *GRPCClient) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	out, err := s.call(ctx, "VerifyOTP", map[string]any{"email": email, "otp": code})
	if err != nil {
		return "", err
	}
	return field(out, "reset_token"), nil
}

// ResetPassword sets a new password. The server revokes every session of
// the account, so the stored pair is dropped.
func (s *GRPCClient) ResetPassword(ctx context.Context, email, resetToken, newPassword string) error {
	_, err := s.call(ctx, "ResetPassword", map[string]any{
		"email": email, "reset_token": resetToken, "new_password": newPassword,
	})
	if err != nil {
		return err
	}
	s.setTokens("", "")
	return nil
}

func (s *GRPCClient) Me(ctx context.Context) (*Identity, error) {
	if access, _ := s.tokens(); access == "" {
		return nil, ErrNotLoggedIn
	}
	out, err := s.call(ctx, "Me", nil)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: field(out, "user_id"), Email: field(out, "email")}, nil
}

// Health checks that the auth service reports SERVING.
func (s *GRPCClient) Health(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(s.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: gs.ServiceName})
	if err != nil {
		return s.mapError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: status %s", ErrUnavailable, resp.GetStatus())
	}
	return nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	var ce *common.Error
	if errors.As(err, &ce) {
		return err
	}

	st, _ := status.FromError(err)
	if kind, ok := gs.KindFromError(err); ok {
		return &common.Error{Kind: kind, UserMessage: st.Message(), Err: err}
	}

	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
