// Package common defines shared constants and errors used across gophauth.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")
)

// Kind is a stable, machine-checkable identifier of a user-facing fault.
type Kind string

const (
	// Codec level.
	KindMalformed         Kind = "malformed"
	KindInvalidSignature  Kind = "invalid_signature"
	KindExpired           Kind = "expired"
	KindTokenKindMismatch Kind = "token_kind_mismatch"

	// Token lifecycle level.
	KindInvalidRefreshToken   Kind = "invalid_refresh_token"
	KindTokenRevokedOrUnknown Kind = "token_revoked_or_unknown"
	KindTokenExpired          Kind = "token_expired"
	KindNoValidRefreshToken   Kind = "no_valid_refresh_token"
	KindCorruptStoredToken    Kind = "corrupt_stored_token"

	// OTP and account level.
	KindAccountNotFound    Kind = "account_not_found"
	KindNoPendingOtp       Kind = "no_pending_otp"
	KindOtpExpired         Kind = "otp_expired"
	KindOtpMismatch        Kind = "otp_mismatch"
	KindOtpLocked          Kind = "otp_locked"
	KindInvalidResetToken  Kind = "invalid_reset_token"
	KindResetTokenExpired  Kind = "reset_token_expired"
	KindDeliveryFailed     Kind = "delivery_failed"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountExists      Kind = "account_exists"
	KindRateLimited        Kind = "rate_limited"
)

// Error is a recoverable, user-facing fault. DevMessage is safe to log,
// UserMessage is safe to display. Neither may contain secrets or raw tokens.
type Error struct {
	Kind        Kind
	DevMessage  string
	UserMessage string
	Err         error
}

func (e *Error) Error() string {
	if e.DevMessage == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.DevMessage
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, common.ErrOtpMismatch) works for any wrapped instance.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// With returns a copy of e carrying a more specific developer detail and cause.
func (e *Error) With(devMessage string, cause error) *Error {
	return &Error{Kind: e.Kind, DevMessage: devMessage, UserMessage: e.UserMessage, Err: cause}
}

// AsError extracts the *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

var (
	ErrMalformed = &Error{Kind: KindMalformed, DevMessage: "token is not parseable",
		UserMessage: "There might be issues with your credentials. Try signing in again."}
	ErrInvalidSignature = &Error{Kind: KindInvalidSignature, DevMessage: "token signature is invalid",
		UserMessage: "There might be issues with your credentials. Try signing in again."}
	ErrExpired = &Error{Kind: KindExpired, DevMessage: "token is expired",
		UserMessage: "Your session has expired. Try signing in again."}
	ErrTokenKindMismatch = &Error{Kind: KindTokenKindMismatch, DevMessage: "token kind claim does not match",
		UserMessage: "There might be issues with your credentials. Try signing in again."}

	ErrInvalidRefreshToken = &Error{Kind: KindInvalidRefreshToken, DevMessage: "failed to decode the refresh token",
		UserMessage: "Something went wrong. Kindly contact the team."}
	ErrTokenRevokedOrUnknown = &Error{Kind: KindTokenRevokedOrUnknown, DevMessage: "refresh token is revoked or unknown",
		UserMessage: "An issue showed up. Kindly contact the team."}
	ErrTokenExpired = &Error{Kind: KindTokenExpired, DevMessage: "stored refresh token is expired",
		UserMessage: "Session expired. Please sign in again."}
	ErrNoValidRefreshToken = &Error{Kind: KindNoValidRefreshToken, DevMessage: "no valid refresh token found",
		UserMessage: "Session expired. Please sign in again."}
	ErrCorruptStoredToken = &Error{Kind: KindCorruptStoredToken, DevMessage: "stored refresh token is invalid or corrupted",
		UserMessage: "There was a token issue. Please sign in again."}

	ErrAccountNotFound = &Error{Kind: KindAccountNotFound, DevMessage: "no account found for this email",
		UserMessage: "We could not find an account linked to this email."}
	ErrNoPendingOtp = &Error{Kind: KindNoPendingOtp, DevMessage: "no OTP record found",
		UserMessage: "Invalid OTP. Please request a new one."}
	ErrOtpExpired = &Error{Kind: KindOtpExpired, DevMessage: "OTP expired",
		UserMessage: "Your OTP has expired. Please request a new one."}
	ErrOtpMismatch = &Error{Kind: KindOtpMismatch, DevMessage: "OTP mismatch",
		UserMessage: "Incorrect OTP. Please try again."}
	ErrOtpLocked = &Error{Kind: KindOtpLocked, DevMessage: "too many OTP attempts",
		UserMessage: "Too many incorrect attempts. Please request a new OTP."}
	ErrInvalidResetToken = &Error{Kind: KindInvalidResetToken, DevMessage: "invalid reset token",
		UserMessage: "Password reset unsuccessful. You might not have requested for a reset."}
	ErrResetTokenExpired = &Error{Kind: KindResetTokenExpired, DevMessage: "reset token expired",
		UserMessage: "Your reset session has expired. Please request for a new OTP."}
	ErrDeliveryFailed = &Error{Kind: KindDeliveryFailed, DevMessage: "failed to send OTP",
		UserMessage: "Could not send OTP. Please try again later."}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, DevMessage: "email or password is incorrect",
		UserMessage: "Invalid email or password."}
	ErrAccountExists = &Error{Kind: KindAccountExists, DevMessage: "email already registered",
		UserMessage: "An account with this email already exists."}
	ErrRateLimited = &Error{Kind: KindRateLimited, DevMessage: "rate limit exceeded",
		UserMessage: "Rate limit exceeded. Try again later."}
)
