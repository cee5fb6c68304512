// Package common defines shared constants and sentinel errors used across
// the notekeeper server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors.
	ErrorInternal        = errors.New("internal error")
	ErrorUnauthorized    = errors.New("unauthorized")
	ErrorAccessDenied    = errors.New("access denied")
	ErrorInvalidArgument = errors.New("invalid argument")

	// Token lifecycle errors.
	ErrorExpired = errors.New("expired")
)
