package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// Kind discriminates the four token classes carried in the token_type claim.
type Kind string

const (
	// KindAccess is a short-lived credential presented on every request.
	KindAccess Kind = "access"
	// KindRefresh is a single-redemption credential exchanged for a new pair.
	KindRefresh Kind = "refresh"
	// KindPasswordReset authorizes one password-reset confirmation.
	KindPasswordReset Kind = "password_reset"
	// KindEmailVerification authorizes one email-verification confirmation.
	KindEmailVerification Kind = "email_verification"
)

// Claims is the full claim set carried by every token. Access tokens leave
// FamilyID and ParentID empty; refresh tokens always carry a FamilyID and,
// after the first rotation, the jti of the token they replaced. Reset and
// verification tokens carry Email instead of Role.
//
// Claims instances are intended to be built through [Builder], signed once,
// and then treated as immutable.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Role     string `json:"role,omitempty"`
	Kind     Kind   `json:"token_type"`
	Email    string `json:"email,omitempty"`
	FamilyID string `json:"family_id,omitempty"`
	ParentID string `json:"parent_jti,omitempty"`
	jwt.RegisteredClaims
}

// JTI returns the unique token identifier.
func (c *Claims) JTI() string {
	if c == nil {
		return ""
	}
	return c.ID
}

// ExpiresUnix returns the expiry as epoch seconds, or 0 when absent.
func (c *Claims) ExpiresUnix() int64 {
	if c == nil || c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Unix()
}
