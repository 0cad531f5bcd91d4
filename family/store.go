package family

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps every transport-level failure of the store.
	ErrRedisUnavailable = errors.New("family redis unavailable")
	// ErrNotFound is returned by Get when no record exists for a jti.
	ErrNotFound = errors.New("family record not found")
)

const recordVersionV1 = 1

// Record is one refresh token's position in its family's ancestry chain.
// ParentID is empty for the root token of a family. Records are never
// mutated after creation.
type Record struct {
	JTI       string
	UserID    int64
	FamilyID  string
	ParentID  string
	CreatedAt int64
}

// Store is a Redis-backed lineage store. Alongside the per-jti record it
// maintains two secondary indexes: family id + user -> member jtis (theft
// response) and user -> jtis (revoke-all flows).
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a Store under the given key prefix ("tfm" when empty).
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "tfm"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) recordKey(jti string) string {
	return s.prefix + ":r:" + jti
}

func (s *Store) familyKey(familyID string, userID int64) string {
	return s.prefix + ":f:" + familyID + ":" + strconv.FormatInt(userID, 10)
}

func (s *Store) userKey(userID int64) string {
	return s.prefix + ":u:" + strconv.FormatInt(userID, 10)
}

// Record persists one lineage record and updates both indexes in a single
// transaction. ttl bounds retention; each write slides the index TTLs
// forward so a family lives as long as its newest member.
func (s *Store) Record(ctx context.Context, rec *Record, ttl time.Duration) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	encoded, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	familyKey := s.familyKey(rec.FamilyID, rec.UserID)
	userKey := s.userKey(rec.UserID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.JTI), encoded, ttl)
		pipe.SAdd(ctx, familyKey, rec.JTI)
		pipe.Expire(ctx, familyKey, ttl)
		pipe.SAdd(ctx, userKey, rec.JTI)
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the lineage record for a jti.
func (s *Store) Get(ctx context.Context, jti string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(jti)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	rec.JTI = jti
	return rec, nil
}

// MembersOf enumerates every jti descended from one family for one user.
// Used only during the theft response.
func (s *Store) MembersOf(ctx context.Context, familyID string, userID int64) ([]string, error) {
	members, err := s.redis.SMembers(ctx, s.familyKey(familyID, userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return members, nil
}

// TokensOf enumerates every recorded refresh jti for a user across all
// families. Used by revoke-all flows (password change, account lockout).
func (s *Store) TokensOf(ctx context.Context, userID int64) ([]string, error) {
	members, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return members, nil
}

func encodeRecord(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(recordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, rec.UserID); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := writeString(&buf, rec.FamilyID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, rec.ParentID); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid family record version")
	}

	rec := &Record{}
	if err := binary.Read(reader, binary.BigEndian, &rec.UserID); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if rec.FamilyID, err = readString(reader); err != nil {
		return nil, err
	}
	if rec.ParentID, err = readString(reader); err != nil {
		return nil, err
	}

	return rec, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("family record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
