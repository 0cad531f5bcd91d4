package flows

import (
	"context"

	"github.com/sci-bono/tokenforge/token"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureParse
	RefreshFailureWrongKind
	RefreshFailureMarkRotated
	RefreshFailureReuse
	RefreshFailureFamilyRecord
	RefreshFailureSign
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure       RefreshFailureKind
	Err           error
	UserID        int64
	FamilyID      string
	OldJTI        string
	NewJTI        string
	AccessToken   string
	RefreshToken  string
	FamilyRevoked int
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	// ParseToken verifies signature, algorithm, expiry, and required claims.
	ParseToken func(string) (*token.Claims, error)
	// MarkRotated atomically blacklists the presented jti as consumed-by-
	// rotation. It returns false when an entry already existed, which is the
	// reuse signal. Errors here always fail the rotation closed.
	MarkRotated func(ctx context.Context, claims *token.Claims) (bool, error)
	// RevokeFamily blacklists every member of the presented token's family
	// and returns how many tokens were locked out.
	RevokeFamily func(ctx context.Context, claims *token.Claims) (int, error)
	// BuildAccess and BuildRefresh construct the successor claim sets.
	BuildAccess  func(userID int64, role string) *token.Claims
	BuildRefresh func(userID int64, role, familyID, parentJTI string) *token.Claims
	// RecordFamily persists the new refresh token's lineage record. Errors
	// fail the rotation closed: lineage loss would break theft detection
	// silently.
	RecordFamily func(ctx context.Context, claims *token.Claims) error
	// Sign serializes and signs a claim set.
	Sign func(*token.Claims) (string, error)
}

// RunRefresh executes one rotation. The reuse check and the consumption of
// the presented token are a single conditional insert (MarkRotated), so two
// concurrent rotations of the same token cannot both win: the loser observes
// the existing entry and triggers the family lockout.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.ParseToken(refreshToken)
	if err != nil {
		return RefreshResult{
			Failure: RefreshFailureParse,
			Err:     err,
		}
	}
	if claims.Kind != token.KindRefresh {
		return RefreshResult{
			Failure: RefreshFailureWrongKind,
			UserID:  claims.UserID,
			OldJTI:  claims.JTI(),
		}
	}

	inserted, err := deps.MarkRotated(ctx, claims)
	if err != nil {
		return RefreshResult{
			Failure:  RefreshFailureMarkRotated,
			Err:      err,
			UserID:   claims.UserID,
			FamilyID: claims.FamilyID,
			OldJTI:   claims.JTI(),
		}
	}
	if !inserted {
		// Second redemption: benign double-submit and replayed theft are
		// indistinguishable here, so the whole family dies.
		revoked, revokeErr := deps.RevokeFamily(ctx, claims)
		return RefreshResult{
			Failure:       RefreshFailureReuse,
			Err:           revokeErr,
			UserID:        claims.UserID,
			FamilyID:      claims.FamilyID,
			OldJTI:        claims.JTI(),
			FamilyRevoked: revoked,
		}
	}

	newRefresh := deps.BuildRefresh(claims.UserID, claims.Role, claims.FamilyID, claims.JTI())
	if err := deps.RecordFamily(ctx, newRefresh); err != nil {
		return RefreshResult{
			Failure:  RefreshFailureFamilyRecord,
			Err:      err,
			UserID:   claims.UserID,
			FamilyID: newRefresh.FamilyID,
			OldJTI:   claims.JTI(),
			NewJTI:   newRefresh.JTI(),
		}
	}

	newAccess := deps.BuildAccess(claims.UserID, claims.Role)
	accessStr, err := deps.Sign(newAccess)
	if err != nil {
		return RefreshResult{
			Failure:  RefreshFailureSign,
			Err:      err,
			UserID:   claims.UserID,
			FamilyID: newRefresh.FamilyID,
			OldJTI:   claims.JTI(),
			NewJTI:   newRefresh.JTI(),
		}
	}
	refreshStr, err := deps.Sign(newRefresh)
	if err != nil {
		return RefreshResult{
			Failure:  RefreshFailureSign,
			Err:      err,
			UserID:   claims.UserID,
			FamilyID: newRefresh.FamilyID,
			OldJTI:   claims.JTI(),
			NewJTI:   newRefresh.JTI(),
		}
	}

	return RefreshResult{
		Failure:      RefreshFailureNone,
		UserID:       claims.UserID,
		FamilyID:     newRefresh.FamilyID,
		OldJTI:       claims.JTI(),
		NewJTI:       newRefresh.JTI(),
		AccessToken:  accessStr,
		RefreshToken: refreshStr,
	}
}
