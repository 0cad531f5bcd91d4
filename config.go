package tokenforge

import (
	"time"

	"github.com/sci-bono/tokenforge/token"
)

// Config groups every tunable of the token service.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable: one struct per process, passed to [Builder], and
// shared read-only afterwards. There is no mutable global configuration.
type Config struct {
	Token     TokenConfig
	Blacklist BlacklistConfig
	Family    FamilyConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig carries the HMAC secret, issuer identity, and per-kind
// lifetimes. The secret must be at least [token.MinSecretLen] bytes; a
// shorter secret fails [Builder.Build] loudly; there is no silent default.
type TokenConfig struct {
	Secret          []byte
	Issuer          string
	Audience        string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	ResetTTL        time.Duration
	VerificationTTL time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// FailureMode selects what an unreachable blacklist means during Verify.
type FailureMode uint8

const (
	// FailOpen treats an unreachable blacklist as "not revoked": a storage
	// outage degrades to "revocation tracking disabled" instead of locking
	// every user out. This matches the source deployment's behavior and is a
	// deliberate, documented trade-off.
	FailOpen FailureMode = iota
	// FailClosed rejects every token while the blacklist is unreachable.
	FailClosed
)

// BlacklistConfig configures the revocation set backend and its outage
// policy.
type BlacklistConfig struct {
	RedisPrefix string
	FailureMode FailureMode
}

// FamilyConfig configures the lineage store.
//
// RetentionSlack extends lineage retention past the refresh TTL so a family
// outlives its longest-lived member. Family store failures never fail open;
// losing lineage would break theft detection silently.
type FamilyConfig struct {
	RedisPrefix    string
	RetentionSlack time.Duration
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher. BufferSize bounds the
// event queue; DropIfFull chooses dropping over blocking when it fills.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metrics collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:       token.DefaultAccessTTL,
			RefreshTTL:      token.DefaultRefreshTTL,
			ResetTTL:        token.DefaultResetTTL,
			VerificationTTL: token.DefaultVerificationTTL,
		},
		Blacklist: BlacklistConfig{
			RedisPrefix: "tbl",
			FailureMode: FailOpen,
		},
		Family: FamilyConfig{
			RedisPrefix:    "tfm",
			RetentionSlack: time.Hour,
		},
		Audit: AuditConfig{
			BufferSize: 256,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Token.Secret != nil {
		out.Token.Secret = make([]byte, len(cfg.Token.Secret))
		copy(out.Token.Secret, cfg.Token.Secret)
	}
	return out
}
