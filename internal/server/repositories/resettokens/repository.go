// Package resettokens stores single-use password reset tokens.
package resettokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

type Repository interface {
	// Create stores t and fills in its ID.
	Create(ctx context.Context, t *models.ResetToken) (*models.ResetToken, error)
	// FindLatestByEmail returns the newest token for email, used or not,
	// or common.ErrorNotFound.
	FindLatestByEmail(ctx context.Context, email string) (*models.ResetToken, error)
	Delete(ctx context.Context, id string) error
	// MarkUsed flips used to true only if it was false and reports whether
	// this call did it.
	MarkUsed(ctx context.Context, id string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
