// Package common defines shared constants and sentinel errors used across
// the Trace core layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Mutation-service errors.
	ErrTemporaryID = errors.New("temporary identifier not allowed here")

	// Remote errors.
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenExpired = errors.New("token expired")
)
