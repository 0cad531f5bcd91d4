package tokenforge

import (
	"context"
	"time"

	internalaudit "github.com/sci-bono/tokenforge/internal/audit"
	"github.com/sci-bono/tokenforge/token"
)

// Service is the token orchestrator: it composes the claim builder, the
// signer/verifier, and the revocation and lineage stores behind the four
// public operations Issue, Verify, Refresh, and Revoke.
//
// Service instances are intended to be configured during initialization
// through [Builder.Build] and then treated as immutable; the only mutable
// shared state is in the durable stores.
type Service struct {
	config    Config
	manager   *token.Manager
	builder   *token.Builder
	blacklist BlacklistStore
	family    FamilyStore
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
}

// Close flushes and stops the audit dispatcher.
func (s *Service) Close() {
	if s == nil {
		return
	}
	if s.audit != nil {
		s.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (s *Service) AuditDropped() uint64 {
	if s == nil || s.audit == nil {
		return 0
	}
	return s.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all metrics.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return s.metrics.Snapshot()
}

func (s *Service) metricInc(id MetricID) {
	if s == nil || s.metrics == nil {
		return
	}
	s.metrics.Inc(id)
}

func (s *Service) metricAdd(id MetricID, delta uint64) {
	if s == nil || s.metrics == nil {
		return
	}
	s.metrics.Add(id, delta)
}

func (s *Service) metricObserve(id MetricID, d time.Duration) {
	if s == nil || s.metrics == nil {
		return
	}
	s.metrics.Observe(id, d)
}

func (s *Service) emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.audit.Emit(ctx, event)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
