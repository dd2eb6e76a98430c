package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

// AccountService implements the account flows on top of TokenService and
// OTPService: registration, password login and password reset.
type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	principals  *PrincipalResolver
	tokens      *TokenService
	otp         *OTPService
	hashParams  cryptox.Params
	logger      logging.Logger
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, tokens *TokenService, otp *OTPService, opts ...Option) *AccountService {
	o := buildOptions(opts)
	return &AccountService{
		db:          db,
		repomanager: m,
		principals:  NewPrincipalResolver(m),
		tokens:      tokens,
		otp:         otp,
		hashParams:  cryptox.DefaultParams,
		logger:      o.logger.With("module", "accounts"),
	}
}

// Register creates a principal of the given kind and signs it in.
// The email must be free across all kinds.
func (s *AccountService) Register(ctx context.Context, kind models.PrincipalKind, email, name, password string) (*models.Principal, *TokenPair, error) {
	_, err := s.principals.Resolve(ctx, s.db, email)
	switch {
	case err == nil:
		return nil, nil, common.ErrAccountExists
	case !errors.Is(err, common.ErrAccountNotFound):
		return nil, nil, err
	}

	pw := []byte(password)
	hash, err := cryptox.HashPassword(pw, s.hashParams)
	common.WipeByteArray(pw)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	var (
		principal *models.Principal
		pair      *TokenPair
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		principal, err = s.repomanager.Principals(tx, kind).Create(ctx, &models.Principal{
			Email:        email,
			Name:         name,
			PasswordHash: hash,
		})
		if err != nil {
			return fmt.Errorf("create principal: %w", err)
		}
		if pair, err = s.tokens.IssueTokenPair(principal.ID, email); err != nil {
			return err
		}
		_, err = s.tokens.PersistRefresh(ctx, tx, pair.RefreshToken, principal.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info(ctx, "principal registered", "email", email, "kind", principal.Kind, "user_id", principal.ID)
	return principal, pair, nil
}

// Login checks the password and returns an access token backed by the
// principal's current refresh token, or a fresh pair when none is valid.
// Unknown emails and wrong passwords both yield common.ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	p, err := s.principals.Resolve(ctx, s.db, email)
	if err != nil {
		if errors.Is(err, common.ErrAccountNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}

	pw := []byte(password)
	ok, err := cryptox.VerifyPassword(pw, p.PasswordHash)
	common.WipeByteArray(pw)
	if err != nil {
		s.logger.Error(ctx, "stored password hash is unreadable", "email", email, "error", err)
		return nil, common.ErrInvalidCredentials
	}
	if !ok {
		s.logger.Warn(ctx, "login rejected", "email", email)
		return nil, common.ErrInvalidCredentials
	}

	pair, err := s.tokens.ResolveAccessFromRefresh(ctx, p.ID)
	if err == nil {
		return pair, nil
	}
	if !errors.Is(err, common.ErrNoValidRefreshToken) && !errors.Is(err, common.ErrCorruptStoredToken) {
		return nil, err
	}

	pair, err = s.tokens.IssueTokenPair(p.ID, p.Email)
	if err != nil {
		return nil, err
	}
	if _, err := s.tokens.PersistRefresh(ctx, s.db, pair.RefreshToken, p.ID); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "new session started", "email", email, "user_id", p.ID)
	return pair, nil
}

// ResetPassword sets a new password using the reset token obtained from
// VerifyOTP. The token is consumed and every refresh token of the principal
// is revoked in the same transaction.
func (s *AccountService) ResetPassword(ctx context.Context, email, resetToken, newPassword string) error {
	rec, err := s.otp.VerifyResetToken(ctx, email)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(rec.Token), []byte(resetToken)) != 1 {
		return common.ErrInvalidResetToken.With("reset token mismatch", nil)
	}

	p, err := s.principals.Resolve(ctx, s.db, email)
	if err != nil {
		return err
	}

	pw := []byte(newPassword)
	hash, err := cryptox.HashPassword(pw, s.hashParams)
	common.WipeByteArray(pw)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.otp.ConsumeResetToken(ctx, tx, rec.ID); err != nil {
			return err
		}
		if err := s.repomanager.Principals(tx, p.Kind).UpdatePassword(ctx, email, hash); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		_, err := s.tokens.revokeAll(ctx, tx, p.ID)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "password reset", "email", email, "user_id", p.ID)
	return nil
}
