// Package principals stores the accounts that can hold tokens. Users and
// agents share one schema in two tables; a repository is bound to one kind.
package principals

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Finder looks a principal up by email.
type Finder interface {
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
}

type Repository interface {
	Finder
	// Create inserts p and fills in ID and CreatedAt.
	Create(ctx context.Context, p *models.Principal) (*models.Principal, error)
	// UpdatePassword replaces the password hash of the principal with email.
	// It returns common.ErrorNotFound when no row matched.
	UpdatePassword(ctx context.Context, email, passwordHash string) error
}
