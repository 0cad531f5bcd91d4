package tokenforge

import (
	"context"
	"fmt"
	"time"

	"github.com/sci-bono/tokenforge/family"
)

// Issue creates a fresh access/refresh pair for a user. The refresh token
// roots a new family: its lineage record carries no parent. Client metadata
// is attached to the audit trail only; nothing is blacklisted at issuance.
func (s *Service) Issue(ctx context.Context, userID int64, role string, client ClientInfo) (*TokenPair, error) {
	if s == nil || s.manager == nil {
		return nil, ErrServiceNotReady
	}

	refreshClaims := s.builder.Refresh(userID, role, "", "")

	if s.family != nil {
		rec := &family.Record{
			JTI:      refreshClaims.JTI(),
			UserID:   userID,
			FamilyID: refreshClaims.FamilyID,
		}
		if err := s.family.Record(ctx, rec, s.familyTTL()); err != nil {
			s.metricInc(MetricIssueFailure)
			s.emit(ctx, AuditEvent{
				EventType: auditTokenIssued,
				UserID:    userID,
				JTI:       refreshClaims.JTI(),
				FamilyID:  refreshClaims.FamilyID,
				IP:        client.IP,
				UserAgent: client.UserAgent,
				Error:     errString(err),
			})
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	accessStr, err := s.manager.Sign(s.builder.Access(userID, role))
	if err != nil {
		s.metricInc(MetricIssueFailure)
		return nil, err
	}
	refreshStr, err := s.manager.Sign(refreshClaims)
	if err != nil {
		s.metricInc(MetricIssueFailure)
		return nil, err
	}

	s.metricInc(MetricIssueSuccess)
	s.emit(ctx, AuditEvent{
		EventType: auditTokenIssued,
		UserID:    userID,
		JTI:       refreshClaims.JTI(),
		FamilyID:  refreshClaims.FamilyID,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		Success:   true,
	})

	return &TokenPair{
		AccessToken:  accessStr,
		RefreshToken: refreshStr,
	}, nil
}

// IssuePasswordReset creates a password-reset token carrying the user's
// email claim. Reset tokens have no family and are revocable by jti like any
// other token.
func (s *Service) IssuePasswordReset(ctx context.Context, userID int64, email string) (string, error) {
	if s == nil || s.manager == nil {
		return "", ErrServiceNotReady
	}
	signed, err := s.manager.Sign(s.builder.PasswordReset(userID, email))
	if err != nil {
		s.metricInc(MetricIssueFailure)
		return "", err
	}
	s.metricInc(MetricIssueSuccess)
	return signed, nil
}

// IssueEmailVerification creates an email-verification token carrying the
// user's email claim.
func (s *Service) IssueEmailVerification(ctx context.Context, userID int64, email string) (string, error) {
	if s == nil || s.manager == nil {
		return "", ErrServiceNotReady
	}
	signed, err := s.manager.Sign(s.builder.EmailVerification(userID, email))
	if err != nil {
		s.metricInc(MetricIssueFailure)
		return "", err
	}
	s.metricInc(MetricIssueSuccess)
	return signed, nil
}

// familyTTL bounds lineage retention: the refresh lifetime plus configured
// slack, so records outlive the newest member they index.
func (s *Service) familyTTL() time.Duration {
	return s.builder.RefreshTTL() + s.config.Family.RetentionSlack
}
