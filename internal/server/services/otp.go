package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/delivery"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

// resetTokenBytes is the entropy of a reset token; it is hex-encoded to 64
// characters.
const resetTokenBytes = 32

// OTPService sends one-time codes and exchanges a correct code for a
// single-use reset token.
type OTPService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	principals  *PrincipalResolver
	sender      delivery.Sender
	now         common.Clock
	logger      logging.Logger
	metrics     *metrics.Metrics

	otpTTL      time.Duration
	resetTTL    time.Duration
	codeLength  int
	maxAttempts int

	genCode  func(width int) (string, error)
	genReset func(size int) (string, error)
}

func NewOTPService(db *sql.DB, m repomanager.RepositoryManager, sender delivery.Sender, cfg *config.Config, opts ...Option) *OTPService {
	o := buildOptions(opts)
	return &OTPService{
		db:          db,
		repomanager: m,
		principals:  NewPrincipalResolver(m),
		sender:      sender,
		now:         o.now,
		logger:      o.logger.With("module", "otp"),
		metrics:     o.metrics,
		otpTTL:      cfg.OTPValidityDuration,
		resetTTL:    cfg.ResetTokenValidityDuration,
		codeLength:  cfg.OTPLength,
		maxAttempts: cfg.OTPMaxAttempts,
		genCode:     common.MakeNumericCode,
		genReset:    common.MakeRandHexString,
	}
}

// SendOTP replaces any pending code for email with a fresh one and hands it
// to the sender. If delivery fails the stored code stays valid and
// common.ErrDeliveryFailed is returned.
func (s *OTPService) SendOTP(ctx context.Context, email string) (err error) {
	defer func() { s.metrics.OTPSent(err) }()

	if _, err := s.principals.Resolve(ctx, s.db, email); err != nil {
		return err
	}

	code, err := s.genCode(s.codeLength)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	now := s.now()
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.OTPs(tx)
		if err := repo.DeleteByEmail(ctx, email); err != nil {
			return err
		}
		_, err := repo.Create(ctx, &models.OTP{
			Email:     email,
			Code:      code,
			CreatedAt: now,
			ExpiresAt: now.Add(s.otpTTL),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	if err := s.sender.SendCode(ctx, email, code); err != nil {
		s.logger.Error(ctx, "otp delivery failed", "email", email, "error", err)
		return common.ErrDeliveryFailed.With("failed to send OTP", err)
	}

	s.logger.Info(ctx, "otp sent", "email", email)
	return nil
}

// VerifyOTP checks code against the pending record for email. On success the
// record is consumed and a fresh reset token is returned.
//
// Business failures are decided inside the transaction but returned after
// commit, so deleting an expired record or counting a failed attempt sticks.
// Losing the consume race is the exception: it rolls back the reset token
// that was already inserted.
func (s *OTPService) VerifyOTP(ctx context.Context, email, code string) (reset *models.ResetToken, err error) {
	defer func() { s.metrics.OTPVerified(err) }()

	var verdict error
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		reset, err = s.verify(ctx, tx, email, code)
		var rb rolledBack
		if errors.As(err, &rb) {
			verdict, reset = rb.verdict, nil
			return err
		}
		if _, ok := common.AsError(err); ok {
			verdict, reset = err, nil
			return nil
		}
		return err
	})
	if err != nil && !errors.As(err, new(rolledBack)) {
		return nil, fmt.Errorf("verify otp: %w", err)
	}
	if verdict != nil {
		s.logger.Warn(ctx, "otp verification rejected", "email", email, "reason", verdict)
		return nil, verdict
	}

	s.logger.Info(ctx, "otp verified", "email", email)
	return reset, nil
}

// rolledBack carries a verdict whose transaction must not commit.
type rolledBack struct {
	verdict error
}

func (r rolledBack) Error() string { return r.verdict.Error() }

func (s *OTPService) verify(ctx context.Context, tx dbx.DBTX, email, code string) (*models.ResetToken, error) {
	repo := s.repomanager.OTPs(tx)
	now := s.now()

	rec, err := repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrNoPendingOtp
		}
		return nil, err
	}

	if rec.Expired(now) {
		if _, err := repo.Delete(ctx, rec); err != nil {
			return nil, err
		}
		return nil, common.ErrOtpExpired
	}

	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		if s.maxAttempts <= 0 {
			return nil, common.ErrOtpMismatch
		}
		n, err := repo.IncrementAttempts(ctx, rec)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, common.ErrNoPendingOtp
			}
			return nil, err
		}
		if n >= s.maxAttempts {
			if _, err := repo.Delete(ctx, rec); err != nil {
				return nil, err
			}
			return nil, common.ErrOtpLocked
		}
		return nil, common.ErrOtpMismatch
	}

	// The reset token goes in before the code is consumed: a store outside
	// the transaction (Redis) must not lose the code to a failed insert.
	token, err := s.genReset(resetTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate reset token: %w", err)
	}
	reset, err := s.repomanager.ResetTokens(tx).Create(ctx, &models.ResetToken{
		Email:     email,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(s.resetTTL),
	})
	if err != nil {
		return nil, err
	}

	consumed, err := repo.Delete(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, rolledBack{verdict: common.ErrNoPendingOtp.With("otp was consumed concurrently", nil)}
	}
	return reset, nil
}

// VerifyResetToken returns the newest reset token for email if it is unused
// and unexpired. Expired tokens are deleted.
func (s *OTPService) VerifyResetToken(ctx context.Context, email string) (*models.ResetToken, error) {
	repo := s.repomanager.ResetTokens(s.db)

	rec, err := repo.FindLatestByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidResetToken
		}
		return nil, fmt.Errorf("find reset token: %w", err)
	}
	if rec.Used {
		return nil, common.ErrInvalidResetToken.With("reset token already used", nil)
	}
	if rec.Expired(s.now()) {
		if err := repo.Delete(ctx, rec.ID); err != nil {
			return nil, fmt.Errorf("delete reset token: %w", err)
		}
		return nil, common.ErrResetTokenExpired
	}
	return rec, nil
}

// ConsumeResetToken marks the reset token used. Only the first call for a
// given id succeeds; later calls get common.ErrInvalidResetToken.
func (s *OTPService) ConsumeResetToken(ctx context.Context, db dbx.DBTX, id string) error {
	ok, err := s.repomanager.ResetTokens(db).MarkUsed(ctx, id)
	if err != nil {
		return fmt.Errorf("mark reset token used: %w", err)
	}
	if !ok {
		return common.ErrInvalidResetToken.With("reset token already used", nil)
	}
	return nil
}

// Sweep deletes expired OTP and reset-token records. Refresh tokens are
// kept for reuse detection.
func (s *OTPService) Sweep(ctx context.Context) (otpsDeleted, resetsDeleted int64, err error) {
	now := s.now()
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if otpsDeleted, err = s.repomanager.OTPs(tx).DeleteExpired(ctx, now); err != nil {
			return err
		}
		resetsDeleted, err = s.repomanager.ResetTokens(tx).DeleteExpired(ctx, now)
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("sweep: %w", err)
	}
	s.logger.Info(ctx, "expired records swept", "otps", otpsDeleted, "reset_tokens", resetsDeleted)
	return otpsDeleted, resetsDeleted, nil
}
