package models

import "time"

// OTP is a pending one-time code for an email address. There is at most one
// live record per email.
type OTP struct {
	ID        string
	Email     string
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
	Attempts  int
}

func (o *OTP) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// ResetToken authorises a single password reset after a successful OTP check.
type ResetToken struct {
	ID        string
	Email     string
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

func (r *ResetToken) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
