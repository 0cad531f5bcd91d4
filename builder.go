package tokenforge

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/sci-bono/tokenforge/blacklist"
	"github.com/sci-bono/tokenforge/family"
	internalaudit "github.com/sci-bono/tokenforge/internal/audit"
	"github.com/sci-bono/tokenforge/token"
)

// Builder assembles a [Service] from a [Config] and its store backends.
//
// Builder instances are single-use: configure, call Build once, discard.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	blacklistStore BlacklistStore
	familyStore    FamilyStore
	auditSink      AuditSink

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing the default blacklist and
// family stores.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithBlacklistStore overrides the revocation backend (e.g. pgstore).
func (b *Builder) WithBlacklistStore(store BlacklistStore) *Builder {
	b.blacklistStore = store
	return b
}

// WithFamilyStore overrides the lineage backend (e.g. pgstore).
func (b *Builder) WithFamilyStore(store FamilyStore) *Builder {
	b.familyStore = store
	return b
}

// WithAuditSink sets the destination for audit events and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithMetricsEnabled toggles metric collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and returns the Service. A missing or
// short signing secret is a fatal configuration error here, before any token
// is ever signed.
//
// Build tolerates absent stores: with no blacklist backend the service runs
// in the documented degraded mode where Verify treats every token as not
// revoked, and Refresh fails closed because it cannot rotate safely without
// revocation and lineage state.
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	cfg := cloneConfig(b.config)

	manager, err := token.NewManager(token.Config{
		Secret:   cfg.Token.Secret,
		Issuer:   cfg.Token.Issuer,
		Audience: cfg.Token.Audience,
	})
	if err != nil {
		return nil, err
	}

	claimsBuilder := token.NewBuilder(token.BuilderConfig{
		Issuer:          cfg.Token.Issuer,
		Audience:        cfg.Token.Audience,
		AccessTTL:       cfg.Token.AccessTTL,
		RefreshTTL:      cfg.Token.RefreshTTL,
		ResetTTL:        cfg.Token.ResetTTL,
		VerificationTTL: cfg.Token.VerificationTTL,
	})

	blacklistStore := b.blacklistStore
	familyStore := b.familyStore
	if b.redis != nil {
		if blacklistStore == nil {
			blacklistStore = blacklist.NewStore(b.redis, cfg.Blacklist.RedisPrefix)
		}
		if familyStore == nil {
			familyStore = family.NewStore(b.redis, cfg.Family.RedisPrefix)
		}
	}

	dispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	return &Service{
		config:    cfg,
		manager:   manager,
		builder:   claimsBuilder,
		blacklist: blacklistStore,
		family:    familyStore,
		audit:     dispatcher,
		metrics:   NewMetrics(cfg.Metrics),
	}, nil
}
