// Package tokenforge provides signed access/refresh token issuance, stateless
// verification, refresh-token rotation with family lineage tracking, and
// theft detection through blacklist-based reuse checks.
//
// The package is a library boundary only: it defines no HTTP or CLI surface.
// Service methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]; correctness under concurrent use is
// a property of the durable stores, not of in-process locking.
//
// # Architecture boundaries
//
// tokenforge is the public surface. It exposes [Service], [Builder],
// [Config], and value types (TokenPair, ClientInfo, MetricsSnapshot). Flow
// orchestration and audit dispatch live under internal/ and are never
// exported. Claim construction and signing live in token/; revocation and
// lineage state live in blacklist/ and family/ (Redis) and pgstore/ (SQL).
//
// # What this package must NOT do
//
//   - Distinguish failure causes at the Verify/Refresh boundary: every
//     failure is the single uniform [ErrTokenInvalid], so a caller (or an
//     attacker driving one) cannot learn which check rejected a probe.
//   - Cache blacklist or family state in memory. Freshness matters most
//     exactly where revocation is checked.
//   - Read request state ambiently. Client metadata arrives as an explicit
//     [ClientInfo] parameter.
//
// # Performance contract
//
// Verify is the hot path: one parse plus at most one store round-trip.
// Refresh is allowed one conditional write, one lineage write, and two
// signings per call.
package tokenforge
