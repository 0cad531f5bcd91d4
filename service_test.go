package tokenforge

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sci-bono/tokenforge/blacklist"
	"github.com/sci-bono/tokenforge/token"
)

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.Secret = bytes.Repeat([]byte("k"), token.MinSecretLen)
	cfg.Token.Issuer = "tokenforge-test"
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client, func() {
		_ = client.Close()
		mr.Close()
	}
}

func newTestService(t *testing.T, cfg Config) (*Service, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, client, done := newTestRedis(t)
	svc, err := New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return svc, mr, func() {
		svc.Close()
		done()
	}
}

func testClient() ClientInfo {
	return ClientInfo{IP: "203.0.113.9", UserAgent: "test-agent/1.0"}
}

func TestIssueAndVerify(t *testing.T) {
	svc, _, done := newTestService(t, testConfig())
	defer done()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 42, "member", testClient())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}

	claims, err := svc.Verify(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID != 42 || claims.Role != "member" || claims.Kind != token.KindAccess {
		t.Fatalf("unexpected access claims: %+v", claims)
	}

	refreshClaims, err := svc.VerifyKind(ctx, pair.RefreshToken, token.KindRefresh)
	if err != nil {
		t.Fatalf("VerifyKind failed: %v", err)
	}
	if refreshClaims.FamilyID == "" {
		t.Fatal("refresh token must carry a family id")
	}
	if refreshClaims.ParentID != "" {
		t.Fatal("root refresh token must have no parent")
	}
}

func TestVerifyKindRejectsMismatch(t *testing.T) {
	svc, _, done := newTestService(t, testConfig())
	defer done()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 42, "member", testClient())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := svc.VerifyKind(ctx, pair.RefreshToken, token.KindAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for kind mismatch, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc, _, done := newTestService(t, testConfig())
	defer done()

	for _, input := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		if _, err := svc.Verify(context.Background(), input); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid for %q, got %v", input, err)
		}
	}
}

func TestRefreshRotatesAndChainsFamily(t *testing.T) {
	svc, _, done := newTestService(t, testConfig())
	defer done()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 42, "member", testClient())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	r0, ok := svc.PeekClaims(pair.RefreshToken)
	if !ok {
		t.Fatal("peek of issued refresh token failed")
	}

	pair1, err := svc.Refresh(ctx, pair.RefreshToken, testClient())
	if err != nil {
		t.Fatalf("first Refresh failed: %v", err)
	}

	// The redeemed token is consumed.
	if _, err := svc.Verify(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected redeemed refresh token to be invalid, got %v", err)
	}

	r1, ok := svc.PeekClaims(pair1.RefreshToken)
	if !ok {
		t.Fatal("peek of rotated refresh token failed")
	}
	if r1.FamilyID != r0.FamilyID {
		t.Fatalf("rotation must stay in the family: %q vs %q", r1.FamilyID, r0.FamilyID)
	}
	if r1.ParentID != r0.JTI() {
		t.Fatalf("expected parent %q, got %q", r0.JTI(), r1.ParentID)
	}

	pair2, err := svc.Refresh(ctx, pair1.RefreshToken, testClient())
	if err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	r2, ok := svc.PeekClaims(pair2.RefreshToken)
	if !ok {
		t.Fatal("peek of second rotation failed")
	}
	if r2.FamilyID != r0.FamilyID || r2.ParentID != r1.JTI() {
		t.Fatalf("broken ancestry chain: %+v", r2)
	}

	if _, err := svc.Verify(ctx, pair2.AccessToken); err != nil {
		t.Fatalf("rotated access token failed verification: %v", err)
	}
}

func TestRefreshReuseLocksOutFamily(t *testing.T) {
	svc, _, done := newTestService(t, testConfig())
	defer done()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 42, "member", testClient())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	pair1, err := svc.Refresh(ctx, pair.RefreshToken, testClient())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// Replay of the consumed token: the attacker (or a buggy client)
	// presents the old refresh token again.
	if _, err := svc.Refresh(ctx, pair.RefreshToken, testClient()); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid on reuse, got %v", err)
	}

	// The legitimate successor dies with the family.
	if _, err := svc.Verify(ctx, pair1.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected successor refresh token to be locked out, got %v", err)
	}
	if _, err := svc.Refresh(ctx, pair1.RefreshToken, testClient()); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected successor rotation to be locked out, got %v", err)
	}

	snap := svc.MetricsSnapshot()
	if snap.Counters[MetricRefreshReuseDetected] != 1 {
		t.Fatalf("expected 1 reuse detection, got %d", snap.Counters[MetricRefreshReuseDetected])
	}
	if snap.Counters[MetricFamilyTokensRevoked] == 0 {
		t.Fatal("expected family lockout to revoke at least one token")
	}
}

func TestLogoutThenReuseTripsLockout(t *testing.T) {
	svc, _, done := newTestService(t, testConfig())
	defer done()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 42, "member", testClient())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := svc.Revoke(ctx, pair.RefreshToken, ReasonLogout, testClient()); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	// Presenting a logged-out refresh token is indistinguishable from a
	// replayed stolen one: both hit an existing blacklist entry.
	if _, err := svc.Refresh(ctx, pair.RefreshToken, testClient()); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	snap := svc.MetricsSnapshot()
	if snap.Counters[MetricRefreshReuseDetected] != 1 {
		t.Fatalf("expected logout replay to count as reuse, got %d", snap.Counters[MetricRefreshReuseDetected])
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, _, done := newTestService(t, testConfig())
	defer done()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 42, "member", testClient())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if err := svc.Revoke(ctx, pair.AccessToken, ReasonLogout, testClient()); err != nil {
		t.Fatalf("first Revoke failed: %v", err)
	}
	if err := svc.Revoke(ctx, pair.AccessToken, ReasonLogout, testClient()); err != nil {
		t.Fatalf("second Revoke failed: %v", err)
	}

	if _, err := svc.Verify(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected revoked access token to be invalid, got %v", err)
	}
}

func TestRevokeRejectsInvalidToken(t *testing.T) {
	svc, _, done := newTestService(t, testConfig())
	defer done()

	if err := svc.Revoke(context.Background(), "garbage", ReasonManual, testClient()); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	svc, _, done := newTestService(t, testConfig())
	defer done()
	ctx := context.Background()

	// Two logins, two independent families.
	pairA, err := svc.Issue(ctx, 42, "member", testClient())
	if err != nil {
		t.Fatalf("Issue A failed: %v", err)
	}
	pairB, err := svc.Issue(ctx, 42, "member", testClient())
	if err != nil {
		t.Fatalf("Issue B failed: %v", err)
	}
	other, err := svc.Issue(ctx, 99, "member", testClient())
	if err != nil {
		t.Fatalf("Issue other failed: %v", err)
	}

	revoked, err := svc.RevokeAllForUser(ctx, 42, ReasonPasswordChange, testClient())
	if err != nil {
		t.Fatalf("RevokeAllForUser failed: %v", err)
	}
	if revoked != 2 {
		t.Fatalf("expected 2 revoked refresh tokens, got %d", revoked)
	}

	for _, refresh := range []string{pairA.RefreshToken, pairB.RefreshToken} {
		if _, err := svc.Verify(ctx, refresh); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected refresh token to be revoked, got %v", err)
		}
	}

	// Access tokens are not enumerable; they ride out their short lifetime.
	if _, err := svc.Verify(ctx, pairA.AccessToken); err != nil {
		t.Fatalf("access token should survive revoke-all: %v", err)
	}
	// Other users are untouched.
	if _, err := svc.Verify(ctx, other.RefreshToken); err != nil {
		t.Fatalf("other user's refresh token should survive: %v", err)
	}
}

func TestVerifyFailOpenOnBlacklistOutage(t *testing.T) {
	svc, mr, done := newTestService(t, testConfig())
	defer done()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 42, "member", testClient())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	mr.Close()

	claims, err := svc.Verify(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("expected fail-open pass, got %v", err)
	}
	if claims.UserID != 42 {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	snap := svc.MetricsSnapshot()
	if snap.Counters[MetricVerifyFailedOpen] != 1 {
		t.Fatalf("expected 1 fail-open pass recorded, got %d", snap.Counters[MetricVerifyFailedOpen])
	}
}

func TestVerifyFailClosedOnBlacklistOutage(t *testing.T) {
	cfg := testConfig()
	cfg.Blacklist.FailureMode = FailClosed
	svc, mr, done := newTestService(t, cfg)
	defer done()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 42, "member", testClient())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	mr.Close()

	if _, err := svc.Verify(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid under fail-closed outage, got %v", err)
	}
}

func TestRefreshNeverFailsOpen(t *testing.T) {
	svc, mr, done := newTestService(t, testConfig())
	defer done()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 42, "member", testClient())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	mr.Close()

	// Policy is FailOpen, but rotation always fails closed.
	if _, err := svc.Refresh(ctx, pair.RefreshToken, testClient()); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid during store outage, got %v", err)
	}
}

func TestPasswordResetAndEmailVerificationTokens(t *testing.T) {
	svc, _, done := newTestService(t, testConfig())
	defer done()
	ctx := context.Background()

	reset, err := svc.IssuePasswordReset(ctx, 42, "user@example.com")
	if err != nil {
		t.Fatalf("IssuePasswordReset failed: %v", err)
	}
	claims, err := svc.VerifyKind(ctx, reset, token.KindPasswordReset)
	if err != nil {
		t.Fatalf("VerifyKind failed: %v", err)
	}
	if claims.Email != "user@example.com" {
		t.Fatalf("expected email claim, got %q", claims.Email)
	}
	if _, err := svc.VerifyKind(ctx, reset, token.KindAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("reset token must not pass as access token, got %v", err)
	}

	verification, err := svc.IssueEmailVerification(ctx, 42, "user@example.com")
	if err != nil {
		t.Fatalf("IssueEmailVerification failed: %v", err)
	}
	if _, err := svc.VerifyKind(ctx, verification, token.KindEmailVerification); err != nil {
		t.Fatalf("VerifyKind failed: %v", err)
	}

	// Single use is enforced the same way as any other revocation.
	if err := svc.Revoke(ctx, reset, ReasonManual, testClient()); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := svc.VerifyKind(ctx, reset, token.KindPasswordReset); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected consumed reset token to be invalid, got %v", err)
	}
}

func TestSweepExpiredRemovesDeadEntries(t *testing.T) {
	cfg := testConfig()
	_, client, done := newTestRedis(t)
	defer done()

	svc, err := New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer svc.Close()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 42, "member", testClient())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := svc.Revoke(ctx, pair.AccessToken, ReasonLogout, testClient()); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	// Plant an already-expired entry directly in the same store, standing in
	// for the backlog a previous outage would leave behind.
	direct := blacklist.NewStore(client, cfg.Blacklist.RedisPrefix)
	err = direct.Revoke(ctx, &blacklist.Entry{
		JTI:       "long-dead",
		UserID:    42,
		ExpiresAt: time.Now().Add(-time.Hour).Unix(),
		Reason:    blacklist.ReasonLogout,
	})
	if err != nil {
		t.Fatalf("direct Revoke failed: %v", err)
	}

	removed, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed entry, got %d", removed)
	}

	// The live revocation must survive.
	if _, err := svc.Verify(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected live revocation to survive sweep, got %v", err)
	}

	snap := svc.MetricsSnapshot()
	if snap.Counters[MetricSweepRemoved] != 1 {
		t.Fatalf("expected sweep metric 1, got %d", snap.Counters[MetricSweepRemoved])
	}
}

func TestDegradedModeWithoutStores(t *testing.T) {
	svc, err := New().WithConfig(testConfig()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer svc.Close()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 42, "member", testClient())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Stateless verification still works.
	if _, err := svc.Verify(ctx, pair.AccessToken); err != nil {
		t.Fatalf("Verify failed in degraded mode: %v", err)
	}

	// Rotation cannot run safely without stores.
	if _, err := svc.Refresh(ctx, pair.RefreshToken, testClient()); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if err := svc.Revoke(ctx, pair.AccessToken, ReasonLogout, testClient()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := svc.SweepExpired(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestIntrospectionHelpers(t *testing.T) {
	svc, _, done := newTestService(t, testConfig())
	defer done()
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 42, "admin", testClient())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	userID, err := svc.UserFromToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("UserFromToken failed: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}

	role, err := svc.RoleFromToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("RoleFromToken failed: %v", err)
	}
	if role != "admin" {
		t.Fatalf("expected role admin, got %q", role)
	}

	exp, ok := svc.TokenExpiration(pair.AccessToken)
	if !ok {
		t.Fatal("TokenExpiration failed")
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", exp)
	}
	if svc.IsExpired(pair.AccessToken) {
		t.Fatal("fresh token reported expired")
	}
	if !svc.IsExpired("garbage") {
		t.Fatal("undecodable token must count as expired")
	}
}

func TestAuditTrail(t *testing.T) {
	sink := NewChannelSink(64)
	_, client, done := newTestRedis(t)
	defer done()

	svc, err := New().WithConfig(testConfig()).WithRedis(client).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 42, "member", testClient())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.RefreshToken, testClient()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.RefreshToken, testClient()); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected reuse rejection, got %v", err)
	}

	svc.Close()

	types := map[string]int{}
	for {
		select {
		case event := <-sink.Events():
			types[event.EventType]++
			if event.IP != testClient().IP {
				t.Fatalf("expected client IP on event %q, got %q", event.EventType, event.IP)
			}
			continue
		default:
		}
		break
	}

	if types[auditTokenIssued] != 1 {
		t.Fatalf("expected 1 %s event, got %d", auditTokenIssued, types[auditTokenIssued])
	}
	if types[auditTokenRefreshed] != 1 {
		t.Fatalf("expected 1 %s event, got %d", auditTokenRefreshed, types[auditTokenRefreshed])
	}
	if types[auditRefreshReuseDetected] != 1 {
		t.Fatalf("expected 1 %s event, got %d", auditRefreshReuseDetected, types[auditRefreshReuseDetected])
	}
	if svc.AuditDropped() != 0 {
		t.Fatalf("expected no dropped audit events, got %d", svc.AuditDropped())
	}
}
