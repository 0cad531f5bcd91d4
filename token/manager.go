package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLen is the minimum accepted HMAC secret length in bytes.
const MinSecretLen = 32

var (
	// ErrSecretTooShort is returned by NewManager when the signing secret is
	// missing or shorter than MinSecretLen. This is a fatal configuration
	// error; there is no weak-default fallback.
	ErrSecretTooShort = errors.New("signing secret must be at least 32 bytes")
	// ErrMissingUserID is returned by Parse when a structurally valid token
	// carries no user_id claim.
	ErrMissingUserID = errors.New("token missing user_id claim")
)

// Config holds the Manager's signing secret and expected issuer/audience.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable; the secret is loaded once and shared read-only.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// Manager signs and verifies compact tokens with HMAC-SHA256. Verification
// uses constant-time signature comparison and an exact (no leeway) expiry
// check. A Manager is safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates the secret and returns a Manager. A short or absent
// secret fails loudly here rather than at first signing attempt.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < MinSecretLen {
		return nil, ErrSecretTooShort
	}
	return &Manager{config: cfg}, nil
}

// Sign serializes and signs the claim set, returning the three-segment
// compact token string.
func (m *Manager) Sign(claims *Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.config.Secret)
}

// Parse verifies a compact token end to end: decode, algorithm tag check,
// signature check, exact expiry check, and presence of the user_id claim.
// Revocation state is deliberately out of scope here.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UserID == 0 {
		return nil, ErrMissingUserID
	}

	return claims, nil
}

// Peek decodes the claim segment without verifying the signature or expiry.
// It exists for non-security conveniences (expiry display, routing hints) and
// must never gate access.
func (m *Manager) Peek(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser()
	tok, _, err := parser.ParseUnverified(tokenStr, &Claims{})
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
