// Package refreshtokens declares the server-side repository contract for
// refresh tokens and its PostgreSQL implementation.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository stores refresh tokens. Records are soft-revoked, never deleted.
type Repository interface {
	// Create inserts t and fills in its ID.
	Create(ctx context.Context, t *models.RefreshToken) (*models.RefreshToken, error)

	// FindActive returns the unrevoked record holding the literal token string,
	// or common.ErrorNotFound. Expiry is not checked here.
	FindActive(ctx context.Context, token string) (*models.RefreshToken, error)

	// FindLatestValid returns the newest unrevoked record for userID that is
	// still valid at now, or common.ErrorNotFound.
	FindLatestValid(ctx context.Context, userID string, now time.Time) (*models.RefreshToken, error)

	// Revoke flips revoked to true only if it was false. It reports whether
	// this call performed the flip.
	Revoke(ctx context.Context, id string) (bool, error)

	// RevokeAllForUser revokes every active record of userID and returns
	// how many were revoked.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}
