// Package token implements the compact signed-token layer: claim construction,
// HMAC-SHA256 signing, and strict verification of the three-segment wire form
// (base64url header, claims, signature joined by ".").
//
// # Architecture boundaries
//
// This package is pure computation plus clock reads. It owns the claim schema
// and the signing secret, and nothing else.
//
// # What this package must NOT do
//
//   - Perform I/O or touch any durable store (revocation state is the root
//     package's concern).
//   - Leak which verification step failed beyond the returned error; callers
//     collapse all failures into one uniform result.
package token
