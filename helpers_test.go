package goOTP

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goOTP/clock"
	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/mockapi"
	"github.com/MrEthical07/goOTP/password"
	"github.com/MrEthical07/goOTP/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var epoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type capturedCodes struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
}

func (m *capturedCodes) SendCode(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = map[string]string{}
	}
	m.codes[email] = code
	m.sent++
	return nil
}

func (m *capturedCodes) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

type recordingProvider struct {
	mu     sync.Mutex
	scopes []string
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) SignOut(_ context.Context, scope string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scopes = append(p.scopes, scope)
	return nil
}

type harness struct {
	engine  *Engine
	clock   *clock.Fake
	mr      *miniredis.Miniredis
	backend *mockapi.Server
	mailer  *capturedCodes
	local   *session.MemoryStorage
	handoff *session.MemoryStorage
}

type harnessOption func(cfg *Config, b *Builder, backend *mockapi.Server)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := clock.NewFake(epoch)
	cfg := DefaultConfig()
	cfg.Backend.Latency = 0

	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Backend.TokenTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "goOTP-test",
		Clock:         c,
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	hasher, err := password.NewHasher(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}

	mcfg := mockapi.DefaultConfig()
	mcfg.Latency = 0
	mailer := &capturedCodes{}
	backend, err := mockapi.New(mcfg, rdb, tokens,
		mockapi.WithClock(c),
		mockapi.WithMailer(mailer),
		mockapi.WithHasher(hasher),
	)
	if err != nil {
		t.Fatalf("mock backend: %v", err)
	}

	local := session.NewMemoryStorage(c)
	handoff := session.NewMemoryStorage(c)
	b := New().
		WithBackend(backend).
		WithStorage(local, handoff).
		WithClock(c)
	for _, opt := range opts {
		opt(&cfg, b, backend)
	}
	engine, err := b.WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &harness{
		engine:  engine,
		clock:   c,
		mr:      mr,
		backend: backend,
		mailer:  mailer,
		local:   local,
		handoff: handoff,
	}
}

func (h *harness) open(t *testing.T, scope string) *Flow {
	t.Helper()
	f, err := h.engine.Open(context.Background(), scope)
	if err != nil {
		t.Fatalf("open %s: %v", scope, err)
	}
	return f
}

func (h *harness) signIn(t *testing.T, f *Flow, email string) *session.Session {
	t.Helper()
	ctx := context.Background()
	if err := f.RequestChallenge(ctx, email); err != nil {
		t.Fatalf("request challenge: %v", err)
	}
	sess, err := f.VerifyChallenge(ctx, "", mockapi.DefaultTestCode)
	if err != nil {
		t.Fatalf("verify challenge: %v", err)
	}
	return sess
}

// blockingBackend parks RequestOTP until release is closed.
type blockingBackend struct {
	Backend
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) RequestOTP(ctx context.Context, email, ip string) error {
	close(b.entered)
	<-b.release
	return b.Backend.RequestOTP(ctx, email, ip)
}
