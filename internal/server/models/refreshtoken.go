// Package models defines server-side data models persisted in the database.
package models

import "time"

// RefreshToken is a stored refresh credential. Records are revoked, never
// deleted, so a reused token can be told apart from an unknown one.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Expired reports whether the record is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
