package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sci-bono/tokenforge/blacklist"
)

// BlacklistStore is a PostgreSQL-backed revocation set over the
// token_blacklist table.
type BlacklistStore struct {
	db *sqlx.DB
}

// NewBlacklistStore wraps an existing connection pool.
func NewBlacklistStore(db *sqlx.DB) *BlacklistStore {
	return &BlacklistStore{db: db}
}

type blacklistRow struct {
	JTI       string         `db:"jti"`
	UserID    int64          `db:"user_id"`
	ExpiresAt time.Time      `db:"expires_at"`
	RevokedAt time.Time      `db:"revoked_at"`
	Reason    string         `db:"reason"`
	IP        sql.NullString `db:"ip_address"`
	UserAgent sql.NullString `db:"user_agent"`
}

func (r blacklistRow) entry() *blacklist.Entry {
	return &blacklist.Entry{
		JTI:       r.JTI,
		UserID:    r.UserID,
		ExpiresAt: r.ExpiresAt.Unix(),
		RevokedAt: r.RevokedAt.Unix(),
		Reason:    blacklist.Reason(r.Reason),
		IP:        r.IP.String,
		UserAgent: r.UserAgent.String,
	}
}

// Revoke upserts an entry, refreshing metadata on conflict.
func (s *BlacklistStore) Revoke(ctx context.Context, entry *blacklist.Entry) error {
	if entry.RevokedAt == 0 {
		entry.RevokedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO token_blacklist (jti, user_id, expires_at, revoked_at, reason, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (jti) DO UPDATE
		SET revoked_at = EXCLUDED.revoked_at,
		    reason     = EXCLUDED.reason,
		    ip_address = EXCLUDED.ip_address,
		    user_agent = EXCLUDED.user_agent
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.JTI,
		entry.UserID,
		time.Unix(entry.ExpiresAt, 0),
		time.Unix(entry.RevokedAt, 0),
		string(entry.Reason),
		nullable(entry.IP),
		nullable(entry.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return nil
}

// RevokeIfAbsent inserts only when the jti is new. The conflict target makes
// this the same single-winner primitive as the Redis SET NX.
func (s *BlacklistStore) RevokeIfAbsent(ctx context.Context, entry *blacklist.Entry) (bool, error) {
	if entry.RevokedAt == 0 {
		entry.RevokedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO token_blacklist (jti, user_id, expires_at, revoked_at, reason, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (jti) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		entry.JTI,
		entry.UserID,
		time.Unix(entry.ExpiresAt, 0),
		time.Unix(entry.RevokedAt, 0),
		string(entry.Reason),
		nullable(entry.IP),
		nullable(entry.UserAgent),
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return n == 1, nil
}

// IsRevoked reports whether the jti is present.
func (s *BlacklistStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	query := `SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE jti = $1)`

	if err := s.db.GetContext(ctx, &revoked, query, jti); err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return revoked, nil
}

// Get returns the stored entry for a jti.
func (s *BlacklistStore) Get(ctx context.Context, jti string) (*blacklist.Entry, error) {
	var row blacklistRow
	query := `SELECT * FROM token_blacklist WHERE jti = $1`

	err := s.db.GetContext(ctx, &row, query, jti)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, blacklist.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return row.entry(), nil
}

// SweepExpired deletes entries whose token expiry predates the start of the
// sweep. The cutoff is bound once, so rows inserted mid-sweep with future
// expiries are never touched.
func (s *BlacklistStore) SweepExpired(ctx context.Context) (int, error) {
	query := `DELETE FROM token_blacklist WHERE expires_at < $1`

	res, err := s.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return int(n), nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
