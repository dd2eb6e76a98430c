// Package otps stores pending one-time codes. PostgresRepository is the
// default; RedisStore keeps codes in Redis with a TTL instead.
package otps

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository holds at most one live OTP per email when callers follow the
// DeleteByEmail-then-Create sequence.
type Repository interface {
	// DeleteByEmail removes every record for email.
	DeleteByEmail(ctx context.Context, email string) error

	// Create stores o and fills in its ID.
	Create(ctx context.Context, o *models.OTP) (*models.OTP, error)

	// FindByEmail returns the newest record for email or common.ErrorNotFound.
	FindByEmail(ctx context.Context, email string) (*models.OTP, error)

	// Delete removes exactly the record o (matched by ID). It reports whether
	// this call removed it; false means another caller got there first.
	Delete(ctx context.Context, o *models.OTP) (bool, error)

	// IncrementAttempts bumps the failed-attempt counter of o and returns the
	// new value, or common.ErrorNotFound if the record is gone.
	IncrementAttempts(ctx context.Context, o *models.OTP) (int, error)

	// DeleteExpired removes records expired at now and returns how many.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
