package tokenforge

import (
	"context"
	"time"

	"github.com/sci-bono/tokenforge/internal/flows"
	"github.com/sci-bono/tokenforge/token"
)

// Verify checks a token end to end: signature, algorithm, expiry, required
// claims, then the revocation set. On any failure the caller gets
// [ErrTokenInvalid]; the reason is not distinguishable from the outside.
//
// When the blacklist backend is unreachable the configured [FailureMode]
// decides the outcome. A pass-through under FailOpen is counted and audited
// so operators can see how long they ran blind.
func (s *Service) Verify(ctx context.Context, tokenStr string) (*token.Claims, error) {
	if s == nil || s.manager == nil {
		return nil, ErrServiceNotReady
	}

	start := time.Now()

	deps := flows.VerifyDeps{
		ParseToken: s.manager.Parse,
		FailOpen:   s.config.Blacklist.FailureMode == FailOpen,
	}
	if s.blacklist != nil {
		deps.IsRevoked = s.blacklist.IsRevoked
	}

	res := flows.RunVerify(ctx, tokenStr, deps)
	s.metricObserve(MetricVerifyLatency, time.Since(start))

	if res.FailedOpen {
		s.metricInc(MetricVerifyFailedOpen)
		event := AuditEvent{
			EventType: auditBlacklistFailOpen,
			Success:   true,
		}
		if res.Claims != nil {
			event.UserID = res.Claims.UserID
			event.JTI = res.Claims.JTI()
		}
		s.emit(ctx, event)
	}

	if res.Failure != flows.VerifyFailureNone {
		s.metricInc(MetricVerifyFailure)
		return nil, ErrTokenInvalid
	}

	s.metricInc(MetricVerifySuccess)
	return res.Claims, nil
}

// VerifyKind is Verify plus a token_type check. Presenting a refresh token
// where an access token is expected (or vice versa) is a verification
// failure, not a softer error.
func (s *Service) VerifyKind(ctx context.Context, tokenStr string, kind token.Kind) (*token.Claims, error) {
	claims, err := s.Verify(ctx, tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		s.metricInc(MetricVerifyFailure)
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
