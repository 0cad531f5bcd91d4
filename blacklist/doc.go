// Package blacklist provides the durable set of revoked token identifiers.
//
// Each entry is keyed by jti and stores the owning user, the token's own
// expiry (so cleanup is time-bounded), the revocation reason, and client
// metadata captured at revocation time.
//
// The store does double duty during refresh rotation: RevokeIfAbsent is an
// atomic insert-if-missing, so a rotation both records "this refresh token
// has been redeemed" and detects a second redemption in a single write. That
// closes the window where two concurrent rotations could both pass a separate
// read-then-write reuse check.
package blacklist
