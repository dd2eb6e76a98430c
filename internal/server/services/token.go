package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenService issues, validates, rotates and revokes token pairs.
// Refresh tokens are stored; access tokens are not.
type TokenService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
	now         common.Clock
	logger      logging.Logger
	metrics     *metrics.Metrics

	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, opts ...Option) *TokenService {
	o := buildOptions(opts)
	return &TokenService{
		db:            db,
		repomanager:   m,
		codec:         auth.NewCodec(o.now),
		now:           o.now,
		logger:        o.logger.With("module", "tokens"),
		metrics:       o.metrics,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTokenValidityDuration,
		refreshTTL:    cfg.RefreshTokenValidityDuration,
	}
}

// IssueTokenPair mints an access and a refresh token for the principal.
// Nothing is stored; see PersistRefresh.
func (s *TokenService) IssueTokenPair(userID, email string) (*TokenPair, error) {
	access, err := s.codec.Encode(auth.Claims{UserID: userID, Email: email, Kind: auth.KindAccess}, s.accessSecret, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("encode access token: %w", err)
	}
	refresh, err := s.codec.Encode(auth.Claims{UserID: userID, Email: email, Kind: auth.KindRefresh}, s.refreshSecret, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("encode refresh token: %w", err)
	}
	s.metrics.PairIssued()
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// PersistRefresh stores refreshToken for userID through db, which may be an
// open transaction owned by the caller.
func (s *TokenService) PersistRefresh(ctx context.Context, db dbx.DBTX, refreshToken, userID string) (*models.RefreshToken, error) {
	now := s.now()
	rec, err := s.repomanager.RefreshTokens(db).Create(ctx, &models.RefreshToken{
		UserID:    userID,
		Token:     refreshToken,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}
	return rec, nil
}

// ValidateAccessToken decodes an access token. Storage is not consulted.
func (s *TokenService) ValidateAccessToken(token string) (*auth.Claims, error) {
	return s.codec.DecodeKind(token, s.accessSecret, auth.KindAccess)
}

// RotateRefreshToken exchanges a stored refresh token for a new pair and
// revokes the old record. Of several concurrent calls with the same token
// at most one succeeds; the others get common.ErrTokenRevokedOrUnknown.
func (s *TokenService) RotateRefreshToken(ctx context.Context, oldToken string) (pair *TokenPair, err error) {
	defer func() { s.metrics.Rotation(err) }()

	claims, err := s.codec.DecodeKind(oldToken, s.refreshSecret, auth.KindRefresh)
	if err != nil {
		return nil, common.ErrInvalidRefreshToken.With("failed to decode the refresh token", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)

		rec, err := repo.FindActive(ctx, oldToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrTokenRevokedOrUnknown
			}
			return fmt.Errorf("find refresh token: %w", err)
		}
		if rec.Expired(s.now()) {
			return common.ErrTokenExpired
		}

		won, err := repo.Revoke(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		if !won {
			return common.ErrTokenRevokedOrUnknown.With("refresh token was rotated concurrently", nil)
		}

		pair, err = s.IssueTokenPair(claims.UserID, claims.Email)
		if err != nil {
			return err
		}
		_, err = s.PersistRefresh(ctx, tx, pair.RefreshToken, claims.UserID)
		return err
	})
	if err != nil {
		s.logger.Warn(ctx, "refresh rotation failed", "user_id", claims.UserID, "error", err)
		return nil, err
	}

	s.logger.Info(ctx, "refresh token rotated", "user_id", claims.UserID)
	return pair, nil
}

// ResolveAccessFromRefresh mints a new access token from the newest valid
// stored refresh token of userID and returns it with that same refresh
// string. Nothing is written.
func (s *TokenService) ResolveAccessFromRefresh(ctx context.Context, userID string) (pair *TokenPair, err error) {
	defer func() { s.metrics.Resolution(err) }()

	rec, err := s.repomanager.RefreshTokens(s.db).FindLatestValid(ctx, userID, s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrNoValidRefreshToken
		}
		return nil, fmt.Errorf("find latest refresh token: %w", err)
	}

	claims, err := s.codec.DecodeKind(rec.Token, s.refreshSecret, auth.KindRefresh)
	if err != nil {
		s.logger.Error(ctx, "stored refresh token does not decode", "user_id", userID, "record_id", rec.ID, "error", err)
		return nil, common.ErrCorruptStoredToken.With("stored refresh token is invalid or corrupted", err)
	}

	access, err := s.codec.Encode(auth.Claims{UserID: claims.UserID, Email: claims.Email, Kind: auth.KindAccess}, s.accessSecret, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("encode access token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: rec.Token}, nil
}

// RevokeAll revokes every active refresh token of userID.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return s.revokeAll(ctx, s.db, userID)
}

func (s *TokenService) revokeAll(ctx context.Context, db dbx.DBTX, userID string) (int64, error) {
	n, err := s.repomanager.RefreshTokens(db).RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	s.logger.Info(ctx, "refresh tokens revoked", "user_id", userID, "count", n)
	return n, nil
}
