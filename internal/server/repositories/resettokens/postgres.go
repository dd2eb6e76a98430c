package resettokens

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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.ResetToken) (*models.ResetToken, error) {
	query := `
		INSERT INTO reset_tokens (email, token, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query, t.Email, t.Token, t.CreatedAt, t.ExpiresAt).Scan(&t.ID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	t.Used = false
	return t, nil
}

func (r *PostgresRepository) FindLatestByEmail(ctx context.Context, email string) (*models.ResetToken, error) {
	query := `
		SELECT id, email, token, created_at, expires_at, used
		FROM reset_tokens
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	t := &models.ResetToken{}
	err := r.db.QueryRowContext(ctx, query, email).
		Scan(&t.ID, &t.Email, &t.Token, &t.CreatedAt, &t.ExpiresAt, &t.Used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM reset_tokens
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE reset_tokens
		SET used = true
		WHERE id = $1 AND used = false
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return dbx.SingleRow(res)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM reset_tokens
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
