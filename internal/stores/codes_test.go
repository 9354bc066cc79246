package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*CodeStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCodeStore(rdb, ""), mr
}

func saveCode(t *testing.T, s *CodeStore, email, code string) [32]byte {
	t.Helper()
	hash := sha256.Sum256([]byte(code))
	err := s.Save(context.Background(), email, &CodeRecord{
		CodeHash:  hash,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(5 * time.Minute).Unix(),
	}, 5*time.Minute)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return hash
}

func TestConsumeSucceedsOnce(t *testing.T) {
	s, mr := newTestStore(t)
	hash := saveCode(t, s, "a@b.com", "123456")

	record, err := s.Consume(context.Background(), "a@b.com", hash, 5, now)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if record.IssuedAt != now.Unix() || record.CodeHash != hash {
		t.Fatalf("unexpected record %+v", record)
	}
	if mr.Exists("otc:a@b.com") {
		t.Fatal("expected record to be deleted after consume")
	}
	if _, err := s.Consume(context.Background(), "a@b.com", hash, 5, now); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound on replay, got %v", err)
	}
}

func TestConsumeMismatchCountsAttempts(t *testing.T) {
	s, mr := newTestStore(t)
	hash := saveCode(t, s, "a@b.com", "123456")
	wrong := sha256.Sum256([]byte("000000"))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.Consume(ctx, "a@b.com", wrong, 3, now); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected ErrCodeMismatch, got %v", i, err)
		}
	}
	if ttl := mr.TTL("otc:a@b.com"); ttl <= 0 {
		t.Fatalf("expected TTL preserved after mismatch, got %v", ttl)
	}
	if _, err := s.Consume(ctx, "a@b.com", wrong, 3, now); !errors.Is(err, ErrCodeAttemptsExceeded) {
		t.Fatalf("expected ErrCodeAttemptsExceeded, got %v", err)
	}
	if _, err := s.Consume(ctx, "a@b.com", hash, 3, now); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected record gone after exhaustion, got %v", err)
	}
}

func TestConsumeExpired(t *testing.T) {
	s, _ := newTestStore(t)
	hash := saveCode(t, s, "a@b.com", "123456")

	if _, err := s.Consume(context.Background(), "a@b.com", hash, 3, now.Add(5*time.Minute)); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound for expired code, got %v", err)
	}
}

func TestConsumeConcurrentSingleWinner(t *testing.T) {
	s, _ := newTestStore(t)
	hash := saveCode(t, s, "a@b.com", "123456")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(context.Background(), "a@b.com", hash, 3, now); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestSaveReplacesOutstandingCode(t *testing.T) {
	s, _ := newTestStore(t)
	first := saveCode(t, s, "a@b.com", "111111")
	second := saveCode(t, s, "a@b.com", "222222")

	if _, err := s.Consume(context.Background(), "a@b.com", first, 3, now); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected old code rejected, got %v", err)
	}
	if _, err := s.Consume(context.Background(), "a@b.com", second, 3, now); err != nil {
		t.Fatalf("expected new code accepted, got %v", err)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	data, err := encodeCodeRecord(&CodeRecord{Attempts: 1, IssuedAt: 2, ExpiresAt: 3})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != 51 {
		t.Fatalf("unexpected record size %d", len(data))
	}
	if _, err := decodeCodeRecord(append(data, 0)); err == nil {
		t.Fatal("expected trailing bytes to be rejected")
	}
}
