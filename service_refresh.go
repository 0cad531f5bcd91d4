package tokenforge

import (
	"context"
	"time"

	"github.com/sci-bono/tokenforge/blacklist"
	"github.com/sci-bono/tokenforge/family"
	"github.com/sci-bono/tokenforge/internal/flows"
	"github.com/sci-bono/tokenforge/token"
)

// Refresh redeems a refresh token for a new access/refresh pair. The
// presented token is consumed atomically; a second redemption of the same
// token locks out its whole family and fails. Every failure surfaces as
// [ErrTokenInvalid].
//
// Unlike Verify, Refresh never fails open: rotation without reachable
// revocation and lineage state would silently disable theft detection.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (*TokenPair, error) {
	if s == nil || s.manager == nil {
		return nil, ErrServiceNotReady
	}
	if s.blacklist == nil || s.family == nil {
		s.metricInc(MetricRefreshFailure)
		return nil, ErrTokenInvalid
	}

	deps := flows.RefreshDeps{
		ParseToken: s.manager.Parse,
		MarkRotated: func(ctx context.Context, claims *token.Claims) (bool, error) {
			return s.blacklist.RevokeIfAbsent(ctx, &blacklist.Entry{
				JTI:       claims.JTI(),
				UserID:    claims.UserID,
				ExpiresAt: claims.ExpiresUnix(),
				Reason:    blacklist.ReasonRotation,
				IP:        client.IP,
				UserAgent: client.UserAgent,
			})
		},
		RevokeFamily: func(ctx context.Context, claims *token.Claims) (int, error) {
			return s.lockoutFamily(ctx, claims.FamilyID, claims.UserID, claims.JTI(), client)
		},
		BuildAccess:  s.builder.Access,
		BuildRefresh: s.builder.Refresh,
		RecordFamily: func(ctx context.Context, claims *token.Claims) error {
			return s.family.Record(ctx, &family.Record{
				JTI:      claims.JTI(),
				UserID:   claims.UserID,
				FamilyID: claims.FamilyID,
				ParentID: claims.ParentID,
			}, s.familyTTL())
		},
		Sign: s.manager.Sign,
	}

	res := flows.RunRefresh(ctx, refreshToken, deps)

	switch res.Failure {
	case flows.RefreshFailureNone:
		s.metricInc(MetricRefreshSuccess)
		s.emit(ctx, AuditEvent{
			EventType: auditTokenRefreshed,
			UserID:    res.UserID,
			JTI:       res.NewJTI,
			FamilyID:  res.FamilyID,
			IP:        client.IP,
			UserAgent: client.UserAgent,
			Success:   true,
			Metadata:  map[string]string{"parent_jti": res.OldJTI},
		})
		return &TokenPair{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
		}, nil

	case flows.RefreshFailureReuse:
		s.metricInc(MetricRefreshFailure)
		s.metricInc(MetricRefreshReuseDetected)
		s.metricAdd(MetricFamilyTokensRevoked, uint64(res.FamilyRevoked))
		s.emit(ctx, AuditEvent{
			EventType: auditRefreshReuseDetected,
			UserID:    res.UserID,
			JTI:       res.OldJTI,
			FamilyID:  res.FamilyID,
			IP:        client.IP,
			UserAgent: client.UserAgent,
			Error:     errString(res.Err),
		})
		return nil, ErrTokenInvalid

	default:
		s.metricInc(MetricRefreshFailure)
		s.emit(ctx, AuditEvent{
			EventType: auditTokenRefreshed,
			UserID:    res.UserID,
			JTI:       res.OldJTI,
			FamilyID:  res.FamilyID,
			IP:        client.IP,
			UserAgent: client.UserAgent,
			Error:     errString(res.Err),
		})
		return nil, ErrTokenInvalid
	}
}

// lockoutFamily blacklists every recorded member of a family. The entries are
// written with a generous expiry (a full refresh lifetime from now) so the
// lockout outlives any member still in flight. The presented jti is skipped:
// the tripwire entry that caught the reuse already covers it.
func (s *Service) lockoutFamily(ctx context.Context, familyID string, userID int64, presentedJTI string, client ClientInfo) (int, error) {
	if familyID == "" {
		// Pre-lineage token: nothing to enumerate.
		return 0, nil
	}

	members, err := s.family.MembersOf(ctx, familyID, userID)
	if err != nil {
		return 0, err
	}

	expiresAt := time.Now().Add(s.builder.RefreshTTL()).Unix()
	revoked := 0
	for _, jti := range members {
		if jti == presentedJTI {
			continue
		}
		err := s.blacklist.Revoke(ctx, &blacklist.Entry{
			JTI:       jti,
			UserID:    userID,
			ExpiresAt: expiresAt,
			Reason:    blacklist.ReasonTheftDetected,
			IP:        client.IP,
			UserAgent: client.UserAgent,
		})
		if err != nil {
			return revoked, err
		}
		revoked++
	}
	return revoked, nil
}
