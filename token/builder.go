package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultAccessTTL is the access-token lifetime used when the builder
	// config leaves AccessTTL zero.
	DefaultAccessTTL = time.Hour
	// DefaultRefreshTTL is the refresh-token lifetime used when the builder
	// config leaves RefreshTTL zero.
	DefaultRefreshTTL = 24 * time.Hour
	// DefaultResetTTL is the password-reset token lifetime.
	DefaultResetTTL = 30 * time.Minute
	// DefaultVerificationTTL is the email-verification token lifetime.
	DefaultVerificationTTL = 24 * time.Hour
)

// BuilderConfig controls issuer identity and per-kind lifetimes.
//
// BuilderConfig instances are intended to be configured during initialization
// and then treated as immutable.
type BuilderConfig struct {
	Issuer          string
	Audience        string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	ResetTTL        time.Duration
	VerificationTTL time.Duration
}

// Builder constructs claim sets for the four token kinds. Every built claim
// set gets a fresh cryptographically random jti (UUIDv4, 16 random bytes),
// iat = now, and exp = now + the kind's TTL.
type Builder struct {
	cfg BuilderConfig
}

// NewBuilder creates a Builder, filling zero TTLs with the package defaults.
func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = DefaultVerificationTTL
	}
	return &Builder{cfg: cfg}
}

// RefreshTTL reports the configured refresh-token lifetime. Store layers use
// it to bound blacklist and family retention.
func (b *Builder) RefreshTTL() time.Duration {
	return b.cfg.RefreshTTL
}

// Access builds the claim set for an access token.
func (b *Builder) Access(userID int64, role string) *Claims {
	c := b.base(userID, b.cfg.AccessTTL)
	c.Role = role
	c.Kind = KindAccess
	return c
}

// Refresh builds the claim set for a refresh token. An empty familyID starts
// a new family (the root token of a fresh login); parentJTI is empty for the
// root and the jti of the redeemed token for every rotation after it.
func (b *Builder) Refresh(userID int64, role, familyID, parentJTI string) *Claims {
	c := b.base(userID, b.cfg.RefreshTTL)
	c.Role = role
	c.Kind = KindRefresh
	if familyID == "" {
		familyID = uuid.NewString()
	}
	c.FamilyID = familyID
	c.ParentID = parentJTI
	return c
}

// PasswordReset builds the claim set for a password-reset token.
func (b *Builder) PasswordReset(userID int64, email string) *Claims {
	c := b.base(userID, b.cfg.ResetTTL)
	c.Kind = KindPasswordReset
	c.Email = email
	return c
}

// EmailVerification builds the claim set for an email-verification token.
func (b *Builder) EmailVerification(userID int64, email string) *Claims {
	c := b.base(userID, b.cfg.VerificationTTL)
	c.Kind = KindEmailVerification
	c.Email = email
	return c
}

func (b *Builder) base(userID int64, ttl time.Duration) *Claims {
	now := time.Now()
	c := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    b.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if b.cfg.Audience != "" {
		c.Audience = jwt.ClaimStrings{b.cfg.Audience}
	}
	return c
}
