package client

import "context"

// Client is the API of the gophauth service as seen by callers.
type Client interface {
	Close() error
	Register(ctx context.Context, kind, email, name, password string) (string, error)
	Login(ctx context.Context, email, password string) error
	Refresh(ctx context.Context) error
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (string, error)
	ResetPassword(ctx context.Context, email, resetToken, newPassword string) error
	Me(ctx context.Context) (*Identity, error)
	Health(ctx context.Context) error
}

// Identity is the principal behind the current access token.
type Identity struct {
	UserID string
	Email  string
}
