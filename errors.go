package tokenforge

import "errors"

var (
	// ErrTokenInvalid is the uniform result for every Verify and Refresh
	// failure: malformed input, signature mismatch, expiry, revocation, and
	// reuse detection all map here. Callers must surface it as a generic
	// authentication failure, never as a per-cause message.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrStoreUnavailable is returned by revocation and sweep operations when
	// the backing store cannot be reached.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrServiceNotReady is returned when a Service method is called on a nil
	// or incompletely built service.
	ErrServiceNotReady = errors.New("service not initialized")
)
