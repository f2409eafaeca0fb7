package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Configuration supplied by a caller is unusable (non-positive window, threshold, etc.)
	ErrInvalidConfig = errors.New("invalid configuration")

	// An invariant of a store was violated; decisions fail closed when this is seen
	ErrInternalInconsistency = errors.New("internal inconsistency")

	// Policy errors surfaced by the service layer
	ErrAccountLocked  = errors.New("account is temporarily locked")
	ErrSessionInvalid = errors.New("session is invalid")

	// The revocation store cannot be reached; the in-memory blacklist stays authoritative
	ErrStoreUnavailable = errors.New("revocation store unavailable")
)
