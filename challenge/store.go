package challenge

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recordVersionV1 = 1
	recordSize      = 1 + 8 + sha256.Size

	// DefaultPrefix namespaces challenge keys.
	DefaultPrefix = "npc"
	// DefaultTTL matches a typical server-side challenge lifetime.
	DefaultTTL = 15 * time.Minute
)

var (
	ErrNotFound      = errors.New("challenge record not found")
	ErrEmailMismatch = errors.New("challenge issued for a different email")
	ErrUnavailable   = errors.New("challenge store unavailable")
)

// Record is what the store keeps per issued token.
type Record struct {
	EmailHash [32]byte
	IssuedAt  int64
}

// RedisStore remembers which email each challenge token was issued for.
// Only hashes are stored: the key is derived from the token and the value
// from the normalized email.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore returns a store writing under prefix with records that
// expire after ttl. Zero values select DefaultPrefix and DefaultTTL.
func NewRedisStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *RedisStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + ":" + hex.EncodeToString(sum[:])
}

// Record stores the pairing of token and email, replacing any earlier one.
func (s *RedisStore) Record(ctx context.Context, email, token string) error {
	encoded := encodeRecord(&Record{
		EmailHash: hashEmail(email),
		IssuedAt:  s.now().Unix(),
	})

	if err := s.redis.Set(ctx, s.key(token), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Check reports whether token was recorded for email.
func (s *RedisStore) Check(ctx context.Context, email, token string) error {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	want := hashEmail(email)
	if subtle.ConstantTimeCompare(record.EmailHash[:], want[:]) != 1 {
		return ErrEmailMismatch
	}
	return nil
}

// Forget deletes the record for token. Deleting a missing record is not an error.
func (s *RedisStore) Forget(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func hashEmail(email string) [32]byte {
	return sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
}

func encodeRecord(record *Record) []byte {
	var buf bytes.Buffer
	buf.Grow(recordSize)
	buf.WriteByte(recordVersionV1)
	_ = binary.Write(&buf, binary.BigEndian, record.IssuedAt)
	buf.Write(record.EmailHash[:])
	return buf.Bytes()
}

func decodeRecord(data []byte) (*Record, error) {
	if len(data) != recordSize {
		return nil, errors.New("invalid challenge record size")
	}
	if data[0] != recordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &Record{
		IssuedAt: int64(binary.BigEndian.Uint64(data[1:9])),
	}
	copy(record.EmailHash[:], data[9:])
	return record, nil
}
