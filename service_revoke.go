package tokenforge

import (
	"context"
	"fmt"
	"time"

	"github.com/sci-bono/tokenforge/blacklist"
)

// RevocationReason aliases the store-level reason so callers don't need to
// import the blacklist package.
type RevocationReason = blacklist.Reason

const (
	ReasonLogout         = blacklist.ReasonLogout
	ReasonPasswordChange = blacklist.ReasonPasswordChange
	ReasonManual         = blacklist.ReasonManual
)

// Revoke blacklists a single token until its natural expiry. The token must
// still verify statelessly; revoking garbage is rejected as
// [ErrTokenInvalid]. Revoking an already-revoked token succeeds and refreshes
// the entry's metadata.
func (s *Service) Revoke(ctx context.Context, tokenStr string, reason RevocationReason, client ClientInfo) error {
	if s == nil || s.manager == nil {
		return ErrServiceNotReady
	}
	if s.blacklist == nil {
		return ErrStoreUnavailable
	}
	if reason == "" {
		reason = ReasonManual
	}

	claims, err := s.manager.Parse(tokenStr)
	if err != nil {
		s.metricInc(MetricRevokeFailure)
		return ErrTokenInvalid
	}

	entry := &blacklist.Entry{
		JTI:       claims.JTI(),
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresUnix(),
		Reason:    reason,
		IP:        client.IP,
		UserAgent: client.UserAgent,
	}
	if err := s.blacklist.Revoke(ctx, entry); err != nil {
		s.metricInc(MetricRevokeFailure)
		s.emit(ctx, AuditEvent{
			EventType: auditTokenRevoked,
			UserID:    claims.UserID,
			JTI:       claims.JTI(),
			FamilyID:  claims.FamilyID,
			IP:        client.IP,
			UserAgent: client.UserAgent,
			Error:     errString(err),
		})
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricRevokeSuccess)
	s.emit(ctx, AuditEvent{
		EventType: auditTokenRevoked,
		UserID:    claims.UserID,
		JTI:       claims.JTI(),
		FamilyID:  claims.FamilyID,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		Success:   true,
		Metadata:  map[string]string{"reason": string(reason)},
	})
	return nil
}

// RevokeAllForUser blacklists every refresh token the lineage store knows for
// a user and returns how many were revoked. Outstanding access tokens are not
// enumerable and ride out their short lifetime; this matches the documented
// password-change semantics.
func (s *Service) RevokeAllForUser(ctx context.Context, userID int64, reason RevocationReason, client ClientInfo) (int, error) {
	if s == nil || s.manager == nil {
		return 0, ErrServiceNotReady
	}
	if s.blacklist == nil || s.family == nil {
		return 0, ErrStoreUnavailable
	}
	if reason == "" {
		reason = ReasonPasswordChange
	}

	jtis, err := s.family.TokensOf(ctx, userID)
	if err != nil {
		s.metricInc(MetricRevokeFailure)
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	expiresAt := time.Now().Add(s.builder.RefreshTTL()).Unix()
	revoked := 0
	for _, jti := range jtis {
		err := s.blacklist.Revoke(ctx, &blacklist.Entry{
			JTI:       jti,
			UserID:    userID,
			ExpiresAt: expiresAt,
			Reason:    reason,
			IP:        client.IP,
			UserAgent: client.UserAgent,
		})
		if err != nil {
			s.metricInc(MetricRevokeFailure)
			return revoked, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		revoked++
	}

	s.metricAdd(MetricFamilyTokensRevoked, uint64(revoked))
	s.metricInc(MetricRevokeSuccess)
	s.emit(ctx, AuditEvent{
		EventType: auditUserTokensRevoked,
		UserID:    userID,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		Success:   true,
		Metadata: map[string]string{
			"reason":  string(reason),
			"revoked": fmt.Sprintf("%d", revoked),
		},
	})
	return revoked, nil
}

// SweepExpired removes blacklist entries whose tokens have expired on their
// own. Meant to be called from a periodic job; the store guarantees entries
// created after the sweep starts are untouched.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	if s == nil {
		return 0, ErrServiceNotReady
	}
	if s.blacklist == nil {
		return 0, ErrStoreUnavailable
	}

	removed, err := s.blacklist.SweepExpired(ctx)
	if removed > 0 {
		s.metricAdd(MetricSweepRemoved, uint64(removed))
	}
	if err != nil {
		return removed, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.emit(ctx, AuditEvent{
		EventType: auditBlacklistSweep,
		Success:   true,
		Metadata:  map[string]string{"removed": fmt.Sprintf("%d", removed)},
	})
	return removed, nil
}
