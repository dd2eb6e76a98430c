package principals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// PostgresRepository implements Repository for a single principal kind.
type PostgresRepository struct {
	db    dbx.DBTX
	kind  models.PrincipalKind
	table string
}

// NewPostgresRepository binds a repository to db and to the table of kind.
// Unknown kinds fall back to users.
func NewPostgresRepository(db dbx.DBTX, kind models.PrincipalKind) *PostgresRepository {
	table := "users"
	if kind == models.PrincipalAgent {
		table = "agents"
	} else {
		kind = models.PrincipalUser
	}
	return &PostgresRepository{db: db, kind: kind, table: table}
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	query := fmt.Sprintf(`
		SELECT id, email, name, password_hash, created_at
		FROM %s
		WHERE email = $1
	`, r.table)

	p := &models.Principal{Kind: r.kind}
	err := r.db.QueryRowContext(ctx, query, email).
		Scan(&p.ID, &p.Email, &p.Name, &p.PasswordHash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Principal) (*models.Principal, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, r.table)

	if err := r.db.QueryRowContext(ctx, query, p.Email, p.Name, p.PasswordHash).Scan(&p.ID, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	p.Kind = r.kind
	return p, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET password_hash = $2
		WHERE email = $1
	`, r.table)

	res, err := r.db.ExecContext(ctx, query, email, passwordHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	ok, err := dbx.SingleRow(res)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !ok {
		return common.ErrorNotFound
	}
	return nil
}
