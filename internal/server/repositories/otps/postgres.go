package otps

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) DeleteByEmail(ctx context.Context, email string) error {
	query := `
		DELETE FROM otps
		WHERE email = $1
	`
	if _, err := r.db.ExecContext(ctx, query, email); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, o *models.OTP) (*models.OTP, error) {
	query := `
		INSERT INTO otps (email, otp, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query, o.Email, o.Code, o.CreatedAt, o.ExpiresAt).Scan(&o.ID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	o.Attempts = 0
	return o, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.OTP, error) {
	query := `
		SELECT id, email, otp, created_at, expires_at, attempts
		FROM otps
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	o := &models.OTP{}
	err := r.db.QueryRowContext(ctx, query, email).
		Scan(&o.ID, &o.Email, &o.Code, &o.CreatedAt, &o.ExpiresAt, &o.Attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return o, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, o *models.OTP) (bool, error) {
	query := `
		DELETE FROM otps
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, o.ID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return dbx.SingleRow(res)
}

func (r *PostgresRepository) IncrementAttempts(ctx context.Context, o *models.OTP) (int, error) {
	query := `
		UPDATE otps
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`
	var attempts int
	if err := r.db.QueryRowContext(ctx, query, o.ID).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM otps
		WHERE expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
