// Package family records refresh-token lineage: every refresh token issued
// gets one immutable record linking it to its family (one family per login)
// and to the token it replaced.
//
// Records exist for exactly one purpose: when a redeemed refresh token is
// presented again, the family id is the blast radius: every descendant of the
// same login is enumerated and blacklisted. Lookups are by family id and by
// user, never by freshness, so retention is a TTL-based housekeeping concern
// rather than a correctness one.
package family
