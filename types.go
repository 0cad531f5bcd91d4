package tokenforge

import (
	"context"
	"io"
	"time"

	"github.com/sci-bono/tokenforge/blacklist"
	"github.com/sci-bono/tokenforge/family"
	internalaudit "github.com/sci-bono/tokenforge/internal/audit"
)

// TokenPair is returned by [Service.Issue] and [Service.Refresh].
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// ClientInfo carries request metadata (caller IP, user agent) explicitly into
// issue/refresh/revoke so the core never reads ambient request state. Zero
// value is fine when the caller has nothing to attach.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// BlacklistStore is the durable revocation set consumed by [Service]. The
// Redis implementation lives in blacklist/; a SQL implementation lives in
// pgstore/. RevokeIfAbsent must be an atomic insert-if-missing; it is the
// reuse tripwire of the rotation protocol.
type BlacklistStore interface {
	Revoke(ctx context.Context, entry *blacklist.Entry) error
	RevokeIfAbsent(ctx context.Context, entry *blacklist.Entry) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
	SweepExpired(ctx context.Context) (int, error)
}

// FamilyStore is the durable lineage store consumed by [Service]. The Redis
// implementation lives in family/; a SQL implementation lives in pgstore/.
type FamilyStore interface {
	Record(ctx context.Context, rec *family.Record, ttl time.Duration) error
	Get(ctx context.Context, jti string) (*family.Record, error)
	MembersOf(ctx context.Context, familyID string, userID int64) ([]string, error)
	TokensOf(ctx context.Context, userID int64) ([]string, error)
}

var (
	_ BlacklistStore = (*blacklist.Store)(nil)
	_ FamilyStore    = (*family.Store)(nil)
)

// AuditEvent is a structured audit record emitted by the service.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the service's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
