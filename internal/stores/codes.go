package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const codeRecordVersionV1 = 1

var (
	ErrCodeNotFound         = errors.New("code record not found")
	ErrCodeMismatch         = errors.New("code mismatch")
	ErrCodeAttemptsExceeded = errors.New("code attempts exceeded")
	ErrCodeRedisUnavailable = errors.New("code redis unavailable")
)

// consumeCodeLua atomically performs GET, validate, then DEL or SET.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = max attempts
// ARGV[3] = current unix timestamp
//
// Record layout: version(1) attempts(2 BE) issuedAt(8 BE) expiresAt(8 BE) hash(32).
var consumeCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])

if string.byte(data, 1) ~= 1 or string.len(data) ~= 51 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local attempts = string.byte(data, 2) * 256 + string.byte(data, 3)

local expiresAt = 0
for i = 12, 19 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end

if nowUnix >= expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

if string.sub(data, 20, 51) ~= providedHash then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='not_found'}
  end
  local updated = string.sub(data, 1, 1) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 4)
  redis.call('SET', KEYS[1], updated, 'PX', ttlMs)
  return {err='mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// CodeRecord is the persisted state of one issued code.
type CodeRecord struct {
	CodeHash  [32]byte
	Attempts  uint16
	IssuedAt  int64
	ExpiresAt int64
}

// CodeStore persists [CodeRecord] values keyed by normalized email.
type CodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewCodeStore returns a store writing under prefix (default "otc").
func NewCodeStore(redisClient redis.UniversalClient, prefix string) *CodeStore {
	if prefix == "" {
		prefix = "otc"
	}
	return &CodeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *CodeStore) key(email string) string {
	return s.prefix + ":" + email
}

// Save replaces any outstanding code for email.
func (s *CodeStore) Save(ctx context.Context, email string, record *CodeRecord, ttl time.Duration) error {
	encoded, err := encodeCodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return nil
}

// Consume deletes and returns the record when providedHash matches.
// A mismatch counts one failed attempt; reaching maxAttempts deletes the
// record and returns ErrCodeAttemptsExceeded.
func (s *CodeStore) Consume(ctx context.Context, email string, providedHash [32]byte, maxAttempts int, now time.Time) (*CodeRecord, error) {
	result, err := consumeCodeLua.Run(ctx, s.redis,
		[]string{s.key(email)},
		string(providedHash[:]),
		maxAttempts,
		now.Unix(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, ErrCodeNotFound
		case "attempts_exceeded":
			return nil, ErrCodeAttemptsExceeded
		case "mismatch":
			return nil, ErrCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrCodeRedisUnavailable)
	}
	record, err := decodeCodeRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}

	// Lua string equality is not constant time.
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrCodeMismatch
	}
	return record, nil
}

// Delete drops any outstanding code for email.
func (s *CodeStore) Delete(ctx context.Context, email string) error {
	if err := s.redis.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return nil
}

func encodeCodeRecord(record *CodeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(codeRecordVersionV1)
	for _, v := range []any{record.Attempts, record.IssuedAt, record.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}
	buf.Write(record.CodeHash[:])
	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*CodeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	record := &CodeRecord{}
	for _, v := range []any{&record.Attempts, &record.IssuedAt, &record.ExpiresAt} {
		if err := binary.Read(reader, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in code record")
	}
	return record, nil
}
