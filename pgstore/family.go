package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sci-bono/tokenforge/family"
)

// ErrDatabaseUnavailable wraps every transport-level failure of the
// PostgreSQL stores.
var ErrDatabaseUnavailable = errors.New("pgstore database unavailable")

// FamilyStore is a PostgreSQL-backed lineage store over the token_families
// table. The Redis store's secondary indexes map to plain WHERE clauses here.
type FamilyStore struct {
	db *sqlx.DB
}

// NewFamilyStore wraps an existing connection pool.
func NewFamilyStore(db *sqlx.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

type familyRow struct {
	JTI       string         `db:"jti"`
	UserID    int64          `db:"user_id"`
	FamilyID  string         `db:"family_id"`
	ParentID  sql.NullString `db:"parent_jti"`
	CreatedAt time.Time      `db:"created_at"`
	ExpiresAt time.Time      `db:"expires_at"`
}

// Record persists one lineage record. Records are insert-only; re-recording
// an existing jti is a no-op rather than an error.
func (s *FamilyStore) Record(ctx context.Context, rec *family.Record, ttl time.Duration) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	query := `
		INSERT INTO token_families (jti, user_id, family_id, parent_jti, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (jti) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.JTI,
		rec.UserID,
		rec.FamilyID,
		nullable(rec.ParentID),
		time.Unix(rec.CreatedAt, 0),
		time.Now().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return nil
}

// Get returns the lineage record for a jti.
func (s *FamilyStore) Get(ctx context.Context, jti string) (*family.Record, error) {
	var row familyRow
	query := `SELECT * FROM token_families WHERE jti = $1`

	err := s.db.GetContext(ctx, &row, query, jti)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, family.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}

	return &family.Record{
		JTI:       row.JTI,
		UserID:    row.UserID,
		FamilyID:  row.FamilyID,
		ParentID:  row.ParentID.String,
		CreatedAt: row.CreatedAt.Unix(),
	}, nil
}

// MembersOf enumerates every jti descended from one family for one user.
func (s *FamilyStore) MembersOf(ctx context.Context, familyID string, userID int64) ([]string, error) {
	var jtis []string
	query := `SELECT jti FROM token_families WHERE family_id = $1 AND user_id = $2`

	if err := s.db.SelectContext(ctx, &jtis, query, familyID, userID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return jtis, nil
}

// TokensOf enumerates every recorded refresh jti for a user.
func (s *FamilyStore) TokensOf(ctx context.Context, userID int64) ([]string, error) {
	var jtis []string
	query := `SELECT jti FROM token_families WHERE user_id = $1`

	if err := s.db.SelectContext(ctx, &jtis, query, userID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return jtis, nil
}

// PruneExpired deletes lineage rows whose retention window has passed. The
// Redis store relies on key TTLs for the same cleanup.
func (s *FamilyStore) PruneExpired(ctx context.Context) (int, error) {
	query := `DELETE FROM token_families WHERE expires_at < $1`

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
