package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// requireFields returns the string values of names in order, failing with
// InvalidArgument on the first one that is missing or empty.
func requireFields(in *structpb.Struct, names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		v := in.GetFields()[name].GetStringValue()
		if v == "" {
			return nil, status.Errorf(codes.InvalidArgument, "%s is required", name)
		}
		out[i] = v
	}
	return out, nil
}

func respond(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func pairResponse(p *services.TokenPair) (*structpb.Struct, error) {
	return respond(map[string]any{
		"access_token":  p.AccessToken,
		"refresh_token": p.RefreshToken,
	})
}

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	v, err := requireFields(req, "email", "name", "password")
	if err != nil {
		return nil, err
	}

	kind := models.PrincipalUser
	if k := req.GetFields()["kind"].GetStringValue(); k != "" {
		kind = models.PrincipalKind(k)
	}
	if kind != models.PrincipalUser && kind != models.PrincipalAgent {
		return nil, status.Error(codes.InvalidArgument, "unknown principal kind")
	}

	s.logger.Info(ctx, "Registration request", "email", v[0], "kind", string(kind))

	p, pair, err := s.accounts.Register(ctx, kind, v[0], v[1], v[2])
	if err != nil {
		return nil, s.toStatus(ctx, "Register", err)
	}

	return respond(map[string]any{
		"id":            p.ID,
		"kind":          string(p.Kind),
		"email":         p.Email,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	v, err := requireFields(req, "email", "password")
	if err != nil {
		return nil, err
	}

	pair, err := s.accounts.Login(ctx, v[0], v[1])
	if err != nil {
		return nil, s.toStatus(ctx, "Login", err)
	}

	return pairResponse(pair)
}

func (s *GRPCServer) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	v, err := requireFields(req, "refresh_token")
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.RotateRefreshToken(ctx, v[0])
	if err != nil {
		return nil, s.toStatus(ctx, "Refresh", err)
	}

	return pairResponse(pair)
}

func (s *GRPCServer) SendOTP(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	v, err := requireFields(req, "email")
	if err != nil {
		return nil, err
	}

	if err := s.otp.SendOTP(ctx, v[0]); err != nil {
		return nil, s.toStatus(ctx, "SendOTP", err)
	}

	return respond(map[string]any{"status": "sent"})
}

func (s *GRPCServer) VerifyOTP(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	v, err := requireFields(req, "email", "otp")
	if err != nil {
		return nil, err
	}

	reset, err := s.otp.VerifyOTP(ctx, v[0], v[1])
	if err != nil {
		return nil, s.toStatus(ctx, "VerifyOTP", err)
	}

	return respond(map[string]any{
		"reset_token": reset.Token,
		"expires_at":  reset.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *GRPCServer) ResetPassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	v, err := requireFields(req, "email", "reset_token", "new_password")
	if err != nil {
		return nil, err
	}

	if err := s.accounts.ResetPassword(ctx, v[0], v[1], v[2]); err != nil {
		return nil, s.toStatus(ctx, "ResetPassword", err)
	}

	return respond(map[string]any{"status": "ok"})
}

func (s *GRPCServer) Me(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {

	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	return respond(map[string]any{
		"user_id": claims.UserID,
		"email":   claims.Email,
	})
}
