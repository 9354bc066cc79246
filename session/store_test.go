package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goOTP/clock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})
	return mr, rdb
}

func testSession() *Session {
	return &Session{
		Token: "tok-1",
		User:  User{ID: "u1", Email: "alice@example.com", Name: "alice"},
	}
}

func TestStoreSaveLoadClearMemory(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(epoch)
	store := NewStore(NewMemoryStorage(c), NewMemoryStorage(c), 15*time.Minute)

	if _, err := store.Load(ctx, "c1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession on empty store, got %v", err)
	}

	if err := store.Save(ctx, "c1", testSession()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Token != "tok-1" || got.User.Email != "alice@example.com" || got.User.Name != "alice" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !store.HasSession(ctx, "c1") {
		t.Fatal("expected HasSession true")
	}
	if store.HasSession(ctx, "c2") {
		t.Fatal("scopes must be isolated")
	}

	if err := store.Clear(ctx, "c1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if store.HasSession(ctx, "c1") {
		t.Fatal("expected no session after Clear")
	}
}

func TestStoreSaveRejectsIncompleteSession(t *testing.T) {
	store := NewStore(NewMemoryStorage(nil), nil, time.Minute)

	cases := []*Session{
		nil,
		{Token: "", User: User{Email: "a@b.com"}},
		{Token: "t", User: User{Email: "  "}},
	}
	for i, sess := range cases {
		if err := store.Save(context.Background(), "c", sess); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("case %d: expected ErrInvalidSession, got %v", i, err)
		}
	}
}

func TestStoreTornWriteReadsAsNoSession(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStorage(nil)
	store := NewStore(local, nil, time.Minute)

	if err := local.Set(ctx, "c:"+KeyUserData, `{"email":"a@b.com"}`, 0); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := store.Load(ctx, "c"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("profile without token must not count as a session, got %v", err)
	}
}

func TestStoreCorruptProfileIsCleared(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStorage(nil)
	store := NewStore(local, nil, time.Minute)

	_ = local.Set(ctx, "c:"+KeyAuthToken, "tok", 0)
	_ = local.Set(ctx, "c:"+KeyUserData, "{not-json", 0)

	if _, err := store.Load(ctx, "c"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if local.Len() != 0 {
		t.Fatalf("expected corrupt keys to be removed, %d left", local.Len())
	}
}

func TestStorePendingExpiresWithClock(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(epoch)
	store := NewStore(NewMemoryStorage(c), NewMemoryStorage(c), 10*time.Minute)

	if err := store.SetPending(ctx, "c1", "a@b.com"); err != nil {
		t.Fatalf("SetPending failed: %v", err)
	}
	email, err := store.Pending(ctx, "c1")
	if err != nil || email != "a@b.com" {
		t.Fatalf("unexpected pending: %q %v", email, err)
	}

	c.Advance(10 * time.Minute)
	if _, err := store.Pending(ctx, "c1"); !errors.Is(err, ErrNoPending) {
		t.Fatalf("expected pending to expire, got %v", err)
	}
}

func TestStoreRedisRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewStore(NewRedisStorage(rdb, "ls"), NewRedisStorage(rdb, "ss"), 5*time.Minute)

	if err := store.Save(ctx, "c1", testSession()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !mr.Exists("ls:c1:auth_token") || !mr.Exists("ls:c1:user_data") {
		t.Fatal("expected auth_token and user_data keys in redis")
	}

	if err := store.SetPending(ctx, "c1", "alice@example.com"); err != nil {
		t.Fatalf("SetPending failed: %v", err)
	}
	if ttl := mr.TTL("ss:c1:auth_email"); ttl != 5*time.Minute {
		t.Fatalf("expected handoff TTL 5m, got %v", ttl)
	}

	user := testSession().User
	user.Name = "Alice Liddell"
	if err := store.UpdateUser(ctx, "c1", user); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	got, err := store.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.User.Name != "Alice Liddell" || got.User.Initials() != "AL" {
		t.Fatalf("unexpected updated user: %+v", got.User)
	}

	if err := store.ClearPending(ctx, "c1"); err != nil {
		t.Fatalf("ClearPending failed: %v", err)
	}
	if mr.Exists("ss:c1:auth_email") {
		t.Fatal("expected handoff key removed")
	}
}

func TestStoreRedisUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewStore(NewRedisStorage(rdb, "ls"), nil, time.Minute)
	mr.Close()

	_, err := store.Load(context.Background(), "c1")
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}
