package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

// PrincipalResolver finds the account behind an email, searching the
// principal kinds in priority order: users first, then agents.
type PrincipalResolver struct {
	repomanager repomanager.RepositoryManager
	order       []models.PrincipalKind
}

func NewPrincipalResolver(m repomanager.RepositoryManager) *PrincipalResolver {
	return &PrincipalResolver{
		repomanager: m,
		order:       []models.PrincipalKind{models.PrincipalUser, models.PrincipalAgent},
	}
}

// Resolve returns the first principal found for email or
// common.ErrAccountNotFound.
func (r *PrincipalResolver) Resolve(ctx context.Context, db dbx.DBTX, email string) (*models.Principal, error) {
	for _, kind := range r.order {
		p, err := r.repomanager.Principals(db, kind).FindByEmail(ctx, email)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("find %s: %w", kind, err)
		}
	}
	return nil, common.ErrAccountNotFound
}
