package tokenforge

import (
	"context"
	"time"

	"github.com/sci-bono/tokenforge/token"
)

// UserFromToken verifies the token end to end and returns its subject.
func (s *Service) UserFromToken(ctx context.Context, tokenStr string) (int64, error) {
	claims, err := s.Verify(ctx, tokenStr)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// RoleFromToken verifies the token end to end and returns its role claim.
func (s *Service) RoleFromToken(ctx context.Context, tokenStr string) (string, error) {
	claims, err := s.Verify(ctx, tokenStr)
	if err != nil {
		return "", err
	}
	return claims.Role, nil
}

// TokenExpiration decodes the token WITHOUT verifying its signature and
// returns the expiry. For display and diagnostics only; never make an
// authorization decision from a peeked claim.
func (s *Service) TokenExpiration(tokenStr string) (time.Time, bool) {
	claims := s.peek(tokenStr)
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// IsExpired reports whether the token's (unverified) expiry has passed.
// Undecodable tokens count as expired.
func (s *Service) IsExpired(tokenStr string) bool {
	exp, ok := s.TokenExpiration(tokenStr)
	if !ok {
		return true
	}
	return !exp.After(time.Now())
}

// PeekClaims decodes the token without verification. Same caveat as
// [Service.TokenExpiration].
func (s *Service) PeekClaims(tokenStr string) (*token.Claims, bool) {
	claims := s.peek(tokenStr)
	return claims, claims != nil
}

func (s *Service) peek(tokenStr string) *token.Claims {
	if s == nil || s.manager == nil {
		return nil
	}
	claims, err := s.manager.Peek(tokenStr)
	if err != nil {
		return nil
	}
	return claims
}
