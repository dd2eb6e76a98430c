package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type testEnv struct {
	conn     *grpc.ClientConn
	tokens   *fakeTokens
	otp      *fakeOTP
	accounts *fakeAccounts
}

func startServer(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	env := &testEnv{tokens: &fakeTokens{}, otp: &fakeOTP{}, accounts: &fakeAccounts{}}
	s := NewGRPCServer("bufnet", logging.Nop{}, env.tokens, env.otp, env.accounts, opts...)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})

	env.conn = conn
	return env
}

func (e *testEnv) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := e.conn.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func str(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func TestServer_LoginThenMe(t *testing.T) {
	env := startServer(t)
	ctx := context.Background()

	out, err := env.call(ctx, "Login", map[string]any{"email": "a@x.com", "password": "pw"})
	require.NoError(t, err)
	assert.Equal(t, "acc", str(out, "access_token"))
	assert.Equal(t, "ref", str(out, "refresh_token"))

	authed := metadata.AppendToOutgoingContext(ctx, common.AuthorizationHeaderName, common.BearerPrefix+"good-access")
	me, err := env.call(authed, "Me", nil)
	require.NoError(t, err)
	assert.Equal(t, "u-1", str(me, "user_id"))
	assert.Equal(t, "a@x.com", str(me, "email"))

	_, err = env.call(ctx, "Me", nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestServer_MissingFields(t *testing.T) {
	env := startServer(t)

	for _, method := range []string{"Register", "Login", "Refresh", "SendOTP", "VerifyOTP", "ResetPassword"} {
		_, err := env.call(context.Background(), method, map[string]any{})
		st := status.Convert(err)
		assert.Equal(t, codes.InvalidArgument, st.Code(), method)
		assert.Contains(t, st.Message(), "is required", method)
	}
}

func TestServer_Register(t *testing.T) {
	env := startServer(t)
	ctx := context.Background()

	out, err := env.call(ctx, "Register", map[string]any{"email": "bot@x.com", "name": "Bot", "password": "pw", "kind": "agent"})
	require.NoError(t, err)
	assert.Equal(t, models.PrincipalAgent, env.accounts.regKind)
	assert.Equal(t, "agent", str(out, "kind"))
	assert.Equal(t, "p-1", str(out, "id"))

	_, err = env.call(ctx, "Register", map[string]any{"email": "a@x.com", "name": "A", "password": "pw", "kind": "robot"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	env.accounts.regErr = common.ErrAccountExists
	_, err = env.call(ctx, "Register", map[string]any{"email": "a@x.com", "name": "A", "password": "pw"})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
	assert.Equal(t, models.PrincipalUser, env.accounts.regKind)
}

func TestServer_Refresh(t *testing.T) {
	env := startServer(t)
	ctx := context.Background()

	env.tokens.rotateResp = &services.TokenPair{AccessToken: "a2", RefreshToken: "r2"}
	out, err := env.call(ctx, "Refresh", map[string]any{"refresh_token": "r1"})
	require.NoError(t, err)
	assert.Equal(t, "r1", env.tokens.gotRefresh)
	assert.Equal(t, "r2", str(out, "refresh_token"))

	env.tokens.rotateErr = common.ErrTokenRevokedOrUnknown
	_, err = env.call(ctx, "Refresh", map[string]any{"refresh_token": "r1"})
	st := status.Convert(err)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, common.ErrTokenRevokedOrUnknown.UserMessage, st.Message())
}

func TestServer_OTPFlow(t *testing.T) {
	env := startServer(t)
	ctx := context.Background()

	out, err := env.call(ctx, "SendOTP", map[string]any{"email": "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "sent", str(out, "status"))
	assert.Equal(t, "a@x.com", env.otp.sentTo)

	expires := time.Date(2025, 6, 1, 12, 10, 0, 0, time.UTC)
	env.otp.verifyResp = &models.ResetToken{Token: "reset-1", ExpiresAt: expires}
	out, err = env.call(ctx, "VerifyOTP", map[string]any{"email": "a@x.com", "otp": "123456"})
	require.NoError(t, err)
	assert.Equal(t, "reset-1", str(out, "reset_token"))
	assert.Equal(t, "2025-06-01T12:10:00Z", str(out, "expires_at"))

	env.otp.verifyErr = common.ErrOtpLocked
	_, err = env.call(ctx, "VerifyOTP", map[string]any{"email": "a@x.com", "otp": "000000"})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	env.otp.sendErr = common.ErrDeliveryFailed
	_, err = env.call(ctx, "SendOTP", map[string]any{"email": "a@x.com"})
	assert.Equal(t, codes.Unavailable, status.Code(err))

	out, err = env.call(ctx, "ResetPassword", map[string]any{"email": "a@x.com", "reset_token": "reset-1", "new_password": "new"})
	require.NoError(t, err)
	assert.Equal(t, "ok", str(out, "status"))
	assert.Equal(t, []string{"a@x.com", "reset-1", "new"}, env.accounts.reset)
}

func TestServer_InternalErrorsAreHidden(t *testing.T) {
	env := startServer(t)

	env.accounts.loginErr = errBoom{}
	_, err := env.call(context.Background(), "Login", map[string]any{"email": "a@x.com", "password": "pw"})
	st := status.Convert(err)
	assert.Equal(t, codes.Internal, st.Code())
	assert.NotContains(t, st.Message(), "boom")
}

func TestServer_Health(t *testing.T) {
	env := startServer(t)

	resp, err := healthpb.NewHealthClient(env.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Nop{}, &fakeTokens{}, &fakeOTP{}, &fakeAccounts{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop{}, &fakeTokens{}, &fakeOTP{}, &fakeAccounts{})

	require.Error(t, srv.Run(context.Background()))
}
