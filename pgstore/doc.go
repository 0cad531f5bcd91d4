// Package pgstore provides PostgreSQL-backed implementations of the
// revocation and lineage stores, for deployments that want revocation state
// in the primary database instead of Redis. Wire them in through
// WithBlacklistStore and WithFamilyStore on the service builder.
//
// The atomicity contract is the same as the Redis stores': RevokeIfAbsent is
// a single INSERT ... ON CONFLICT DO NOTHING, so concurrent rotations of the
// same token still resolve to exactly one winner.
package pgstore
