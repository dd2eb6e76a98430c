// Package common contains shared constants, the error taxonomy and small
// random/clock helpers used across gophauth components.
package common

// AuthorizationHeaderName is the gRPC metadata key carrying the bearer token.
const AuthorizationHeaderName = "authorization"

// BearerPrefix precedes the access token in the authorization header.
const BearerPrefix = "Bearer "
