package grpc

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

type fakeTokens struct {
	rotateResp *services.TokenPair
	rotateErr  error
	gotRefresh string
}

func (f *fakeTokens) ValidateAccessToken(token string) (*auth.Claims, error) {
	switch token {
	case "good-access":
		return &auth.Claims{UserID: "u-1", Email: "a@x.com", Kind: auth.KindAccess}, nil
	case "expired-access":
		return nil, common.ErrExpired
	}
	return nil, common.ErrMalformed
}

func (f *fakeTokens) RotateRefreshToken(_ context.Context, oldToken string) (*services.TokenPair, error) {
	f.gotRefresh = oldToken
	return f.rotateResp, f.rotateErr
}

type fakeOTP struct {
	sendErr    error
	sentTo     string
	verifyResp *models.ResetToken
	verifyErr  error
}

func (f *fakeOTP) SendOTP(_ context.Context, email string) error {
	f.sentTo = email
	return f.sendErr
}

func (f *fakeOTP) VerifyOTP(_ context.Context, _, _ string) (*models.ResetToken, error) {
	return f.verifyResp, f.verifyErr
}

type fakeAccounts struct {
	regKind  models.PrincipalKind
	regErr   error
	loginErr error
	resetErr error
	reset    []string
}

func (f *fakeAccounts) Register(_ context.Context, kind models.PrincipalKind, email, name, _ string) (*models.Principal, *services.TokenPair, error) {
	f.regKind = kind
	if f.regErr != nil {
		return nil, nil, f.regErr
	}
	p := &models.Principal{ID: "p-1", Kind: kind, Email: email, Name: name, CreatedAt: time.Now()}
	return p, &services.TokenPair{AccessToken: "acc", RefreshToken: "ref"}, nil
}

func (f *fakeAccounts) Login(_ context.Context, _, _ string) (*services.TokenPair, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &services.TokenPair{AccessToken: "acc", RefreshToken: "ref"}, nil
}

func (f *fakeAccounts) ResetPassword(_ context.Context, email, resetToken, newPassword string) error {
	f.reset = []string{email, resetToken, newPassword}
	return f.resetErr
}

type fakeLimiter struct {
	mu   sync.Mutex
	deny bool
	err  error
	keys []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.err != nil {
		return false, f.err
	}
	return !f.deny, nil
}
