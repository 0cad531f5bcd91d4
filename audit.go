package tokenforge

// Audit event types emitted by the service. Verify successes are not audited;
// Verify is the hot path and its outcomes are visible through metrics.
const (
	auditTokenIssued          = "token_issued"
	auditTokenRefreshed       = "token_refreshed"
	auditRefreshReuseDetected = "refresh_reuse_detected"
	auditTokenRevoked         = "token_revoked"
	auditUserTokensRevoked    = "user_tokens_revoked"
	auditBlacklistSweep       = "blacklist_sweep"
	auditBlacklistFailOpen    = "blacklist_fail_open"
)
