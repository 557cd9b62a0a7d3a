// Package common defines sentinel errors shared by the repositories,
// services and the web layer of the storefront. Callers should use
// errors.Is to match these values; wrapped causes are kept for logging.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Password reset token could not be matched to a live row.
	ErrInvalidToken = errors.New("invalid or expired token")

	// Too many attempts within the throttle window.
	ErrRateLimited = errors.New("rate limited")
)
