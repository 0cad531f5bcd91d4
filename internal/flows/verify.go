package flows

import (
	"context"

	"github.com/sci-bono/tokenforge/token"
)

// VerifyFailureKind classifies verify flow failures for root-level mapping.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureParse
	VerifyFailureRevoked
	VerifyFailureBlacklistUnavailable
)

// VerifyResult carries the verified claims or failure metadata. FailedOpen
// is set when the blacklist was unreachable and policy let the token through.
type VerifyResult struct {
	Failure    VerifyFailureKind
	Err        error
	Claims     *token.Claims
	FailedOpen bool
}

// VerifyDeps captures verify flow dependencies.
type VerifyDeps struct {
	// ParseToken verifies signature, algorithm, expiry, and required claims.
	ParseToken func(string) (*token.Claims, error)
	// IsRevoked consults the blacklist. Nil means no blacklist is configured,
	// which is the documented degraded mode: tokens are treated as not
	// revoked.
	IsRevoked func(ctx context.Context, jti string) (bool, error)
	// FailOpen controls what an unreachable blacklist means: true passes the
	// token through, false rejects it.
	FailOpen bool
}

// RunVerify executes stateless verification followed by the revocation check.
func RunVerify(ctx context.Context, tokenStr string, deps VerifyDeps) VerifyResult {
	claims, err := deps.ParseToken(tokenStr)
	if err != nil {
		return VerifyResult{
			Failure: VerifyFailureParse,
			Err:     err,
		}
	}

	if deps.IsRevoked == nil {
		return VerifyResult{Claims: claims}
	}

	revoked, err := deps.IsRevoked(ctx, claims.JTI())
	if err != nil {
		if deps.FailOpen {
			return VerifyResult{
				Claims:     claims,
				FailedOpen: true,
			}
		}
		return VerifyResult{
			Failure: VerifyFailureBlacklistUnavailable,
			Err:     err,
			Claims:  claims,
		}
	}
	if revoked {
		return VerifyResult{
			Failure: VerifyFailureRevoked,
			Claims:  claims,
		}
	}

	return VerifyResult{Claims: claims}
}
