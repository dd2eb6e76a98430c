package models

import "time"

// PrincipalKind names the table a principal lives in.
type PrincipalKind string

const (
	PrincipalUser  PrincipalKind = "user"
	PrincipalAgent PrincipalKind = "agent"
)

// Principal is an account that can hold tokens: a user or an agent.
type Principal struct {
	ID           string
	Kind         PrincipalKind
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}
