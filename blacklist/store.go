package blacklist

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// Reason records why a token identifier was blacklisted.
type Reason string

const (
	// ReasonLogout marks tokens surrendered by an explicit logout.
	ReasonLogout Reason = "logout"
	// ReasonRotation marks refresh tokens consumed by a successful rotation.
	ReasonRotation Reason = "rotation"
	// ReasonPasswordChange marks tokens invalidated by a password change.
	ReasonPasswordChange Reason = "password_change"
	// ReasonTheftDetected marks tokens killed by a family-wide lockout.
	ReasonTheftDetected Reason = "theft_detected"
	// ReasonManual marks operator-initiated revocations.
	ReasonManual Reason = "manual"
)

var (
	// ErrRedisUnavailable wraps every transport-level failure of the store.
	ErrRedisUnavailable = errors.New("blacklist redis unavailable")
	// ErrNotFound is returned by Get when no entry exists for a jti.
	ErrNotFound = errors.New("blacklist entry not found")
)

const entryVersionV1 = 1

// Entries stay in Redis a little past the token's own expiry so the sweep,
// not key eviction, decides when they disappear. The TTL is only a backstop.
const expiryBackstop = time.Hour

var reasonCodes = map[Reason]byte{
	ReasonLogout:         1,
	ReasonRotation:       2,
	ReasonPasswordChange: 3,
	ReasonTheftDetected:  4,
	ReasonManual:         5,
}

var reasonNames = map[byte]Reason{
	1: ReasonLogout,
	2: ReasonRotation,
	3: ReasonPasswordChange,
	4: ReasonTheftDetected,
	5: ReasonManual,
}

// Entry is one revoked token identifier with its revocation metadata.
type Entry struct {
	JTI       string
	UserID    int64
	ExpiresAt int64
	RevokedAt int64
	Reason    Reason
	IP        string
	UserAgent string
}

// Store is a Redis-backed revocation set.
//
// Store instances are intended to be configured during initialization and
// then treated as immutable; all methods are safe for concurrent use.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a Store under the given key prefix ("tbl" when empty).
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "tbl"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(jti string) string {
	return s.prefix + ":" + jti
}

// Revoke upserts an entry. Revoking an already-revoked jti refreshes the
// revocation timestamp and metadata rather than erroring.
func (s *Store) Revoke(ctx context.Context, entry *Entry) error {
	if entry.RevokedAt == 0 {
		entry.RevokedAt = time.Now().Unix()
	}
	encoded, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(entry.JTI), encoded, s.entryTTL(entry)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeIfAbsent inserts an entry only when the jti is not already
// blacklisted, in one atomic write. It returns true when this call created
// the entry and false when one already existed, which is the reuse signal.
func (s *Store) RevokeIfAbsent(ctx context.Context, entry *Entry) (bool, error) {
	if entry.RevokedAt == 0 {
		entry.RevokedAt = time.Now().Unix()
	}
	encoded, err := encodeEntry(entry)
	if err != nil {
		return false, err
	}

	inserted, err := s.redis.SetNX(ctx, s.key(entry.JTI), encoded, s.entryTTL(entry)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return inserted, nil
}

// IsRevoked reports whether the jti is present in the set.
func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Get returns the stored entry for a jti.
func (s *Store) Get(ctx context.Context, jti string) (*Entry, error) {
	data, err := s.redis.Get(ctx, s.key(jti)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		return nil, err
	}
	entry.JTI = jti
	return entry, nil
}

// SweepExpired deletes entries whose stored token expiry predates the start
// of the sweep and returns how many were removed. Entries created while the
// sweep runs carry a future expiry and are never touched, so the sweep is
// safe to run concurrently with reads and writes.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().Unix()
	pattern := s.prefix + ":*"

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		for _, key := range keys {
			data, err := s.redis.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			entry, err := decodeEntry(data)
			if err != nil {
				// Unreadable blobs are dead weight either way.
				if delErr := s.redis.Del(ctx, key).Err(); delErr != nil {
					return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, delErr)
				}
				removed++
				continue
			}
			if entry.ExpiresAt >= cutoff {
				continue
			}
			n, err := s.redis.Del(ctx, key).Result()
			if err != nil {
				return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

func (s *Store) entryTTL(entry *Entry) time.Duration {
	ttl := time.Until(time.Unix(entry.ExpiresAt, 0)) + expiryBackstop
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

func encodeEntry(entry *Entry) ([]byte, error) {
	code, ok := reasonCodes[entry.Reason]
	if !ok {
		return nil, fmt.Errorf("unknown blacklist reason %q", entry.Reason)
	}

	var buf bytes.Buffer
	buf.WriteByte(entryVersionV1)
	buf.WriteByte(code)

	if err := binary.Write(&buf, binary.BigEndian, entry.UserID); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, entry.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, entry.RevokedAt); err != nil {
		return nil, err
	}

	if err := writeString(&buf, entry.IP); err != nil {
		return nil, err
	}
	if err := writeString(&buf, entry.UserAgent); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (*Entry, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != entryVersionV1 {
		return nil, errors.New("invalid blacklist entry version")
	}

	code, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	reason, ok := reasonNames[code]
	if !ok {
		return nil, errors.New("invalid blacklist reason code")
	}

	entry := &Entry{Reason: reason}
	if err := binary.Read(reader, binary.BigEndian, &entry.UserID); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &entry.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &entry.RevokedAt); err != nil {
		return nil, err
	}

	if entry.IP, err = readString(reader); err != nil {
		return nil, err
	}
	if entry.UserAgent, err = readString(reader); err != nil {
		return nil, err
	}

	return entry, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("blacklist entry field too long")
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
