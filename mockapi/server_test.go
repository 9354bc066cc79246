package mockapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goOTP/clock"
	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/password"
	"github.com/MrEthical07/goOTP/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var epoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type recordingMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *recordingMailer) SendCode(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = map[string]string{}
	}
	m.codes[email] = code
	return nil
}

type fixture struct {
	server *Server
	clock  *clock.Fake
	mr     *miniredis.Miniredis
	mailer *recordingMailer
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Latency = 0
	return cfg
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := clock.NewFake(epoch)
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           15 * time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "mockapi-test",
		Clock:         c,
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	hasher, err := password.NewHasher(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}

	mailer := &recordingMailer{}
	s, err := New(cfg, rdb, tokens, WithClock(c), WithMailer(mailer), WithHasher(hasher))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &fixture{server: s, clock: c, mr: mr, mailer: mailer}
}

func (f *fixture) signIn(t *testing.T, email string, device session.Device) *Grant {
	t.Helper()
	ctx := context.Background()
	if err := f.server.RequestOTP(ctx, email, ""); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	grant, err := f.server.VerifyOTP(ctx, email, DefaultTestCode, device)
	if err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	return grant
}

func TestOTPSignInCreatesUserNamedAfterLocalPart(t *testing.T) {
	f := newFixture(t, testConfig())
	grant := f.signIn(t, "Alice.Smith@Example.com", session.Device{Name: "Laptop"})

	if grant.User.Email != "alice.smith@example.com" || grant.User.Name != "alice.smith" {
		t.Fatalf("unexpected user %+v", grant.User)
	}
	if grant.User.ID == "" || grant.SessionID == "" {
		t.Fatalf("expected ids, got %+v", grant)
	}
	if f.mailer.codes["alice.smith@example.com"] != DefaultTestCode {
		t.Fatalf("expected fixed code to be mailed, got %v", f.mailer.codes)
	}
	if !grant.ExpiresAt.Equal(epoch.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", grant.ExpiresAt)
	}

	again := f.signIn(t, "alice.smith@example.com", session.Device{})
	if again.User.ID != grant.User.ID {
		t.Fatal("expected second sign-in to reuse the account")
	}
}

func TestVerifyOTPCodeIsSingleUse(t *testing.T) {
	f := newFixture(t, testConfig())
	f.signIn(t, "a@b.com", session.Device{})

	if _, err := f.server.VerifyOTP(context.Background(), "a@b.com", DefaultTestCode, session.Device{}); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound on replay, got %v", err)
	}
}

func TestVerifyOTPMismatchAndExhaustion(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCodeAttempts = 2
	f := newFixture(t, cfg)
	ctx := context.Background()

	if err := f.server.RequestOTP(ctx, "a@b.com", ""); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	if _, err := f.server.VerifyOTP(ctx, "a@b.com", "000000", session.Device{}); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
	if _, err := f.server.VerifyOTP(ctx, "a@b.com", "000000", session.Device{}); !errors.Is(err, ErrCodeAttemptsExceeded) {
		t.Fatalf("expected ErrCodeAttemptsExceeded, got %v", err)
	}
	if _, err := f.server.VerifyOTP(ctx, "a@b.com", DefaultTestCode, session.Device{}); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected code gone after exhaustion, got %v", err)
	}
	if _, err := f.server.VerifyOTP(ctx, "a@b.com", "12ab56", session.Device{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for malformed code, got %v", err)
	}
}

func TestVerifyOTPExpiresOnClock(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	if err := f.server.RequestOTP(ctx, "a@b.com", ""); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	f.clock.Advance(testConfig().CodeTTL)
	if _, err := f.server.VerifyOTP(ctx, "a@b.com", DefaultTestCode, session.Device{}); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound for expired code, got %v", err)
	}
}

func TestRequestOTPRandomCode(t *testing.T) {
	cfg := testConfig()
	cfg.FixedCode = ""
	f := newFixture(t, cfg)
	ctx := context.Background()

	if err := f.server.RequestOTP(ctx, "a@b.com", ""); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	code := f.mailer.codes["a@b.com"]
	if len(code) != cfg.CodeLength {
		t.Fatalf("unexpected code %q", code)
	}
	if _, err := f.server.VerifyOTP(ctx, "a@b.com", code, session.Device{}); err != nil {
		t.Fatalf("verify mailed code: %v", err)
	}
}

func TestRequestOTPValidationAndThrottle(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCodeRequests = 2
	f := newFixture(t, cfg)
	ctx := context.Background()

	if err := f.server.RequestOTP(ctx, "not-an-email", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := f.server.RequestOTP(ctx, "a@b.com", ""); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if err := f.server.RequestOTP(ctx, "a@b.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestLatencyUsesClock(t *testing.T) {
	cfg := testConfig()
	cfg.Latency = time.Second
	f := newFixture(t, cfg)

	done := make(chan error, 1)
	go func() { done <- f.server.RequestOTP(context.Background(), "a@b.com", "") }()

	deadline := time.Now().Add(2 * time.Second)
	for f.clock.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("request never started sleeping")
		}
		time.Sleep(time.Millisecond)
	}
	select {
	case err := <-done:
		t.Fatalf("request returned before latency elapsed: %v", err)
	default:
	}

	f.clock.Advance(time.Second)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("request otp: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request did not finish after advancing the clock")
	}
}

func TestRegisterAndPasswordLogin(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	user, err := f.server.Register(ctx, session.Registration{Name: "Ada Lovelace", Email: "ada@example.com", Password: "analytical"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Name != "Ada Lovelace" || user.ID == "" {
		t.Fatalf("unexpected user %+v", user)
	}
	if _, err := f.server.Register(ctx, session.Registration{Name: "Ada", Email: "ADA@example.com", Password: "analytical"}); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if _, err := f.server.Register(ctx, session.Registration{Name: "Bob", Email: "bob@example.com", Password: "short"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for short password, got %v", err)
	}

	if _, err := f.server.Login(ctx, "ada@example.com", "wrong-password", session.Device{}); !errors.Is(err, ErrCredentialsRejected) {
		t.Fatalf("expected ErrCredentialsRejected, got %v", err)
	}
	if _, err := f.server.Login(ctx, "nobody@example.com", "analytical", session.Device{}); !errors.Is(err, ErrCredentialsRejected) {
		t.Fatalf("expected ErrCredentialsRejected for unknown user, got %v", err)
	}
	grant, err := f.server.Login(ctx, "ada@example.com", "analytical", session.Device{})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if grant.User.ID != user.ID {
		t.Fatalf("login returned a different account")
	}
}

func TestPasswordLoginLockout(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLoginFailures = 2
	f := newFixture(t, cfg)
	ctx := context.Background()

	if _, err := f.server.Register(ctx, session.Registration{Name: "Ada", Email: "ada@example.com", Password: "analytical"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.server.Login(ctx, "ada@example.com", "nope-nope", session.Device{}); !errors.Is(err, ErrCredentialsRejected) {
			t.Fatalf("attempt %d: expected ErrCredentialsRejected, got %v", i, err)
		}
	}
	if _, err := f.server.Login(ctx, "ada@example.com", "analytical", session.Device{}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRefreshKeepsSessionAndRejectsExpired(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	grant := f.signIn(t, "a@b.com", session.Device{})

	f.clock.Advance(14 * time.Minute)
	refreshed, err := f.server.Refresh(ctx, grant.Token)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.SessionID != grant.SessionID || !refreshed.ExpiresAt.After(grant.ExpiresAt) {
		t.Fatalf("unexpected refresh grant %+v", refreshed)
	}

	f.clock.Advance(20 * time.Minute)
	if _, err := f.server.Refresh(ctx, refreshed.Token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if _, err := f.server.Refresh(ctx, "garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestSessionsPanel(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	laptop := f.signIn(t, "a@b.com", session.Device{Name: "Laptop"})
	f.clock.Advance(time.Minute)
	phone := f.signIn(t, "a@b.com", session.Device{Name: "Phone"})
	f.clock.Advance(time.Minute)
	tablet := f.signIn(t, "a@b.com", session.Device{Name: "Tablet"})

	list, err := f.server.ListSessions(ctx, phone.Token)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Device.Name != "Tablet" {
		t.Fatalf("unexpected listing %+v", list)
	}
	for _, s := range list {
		if s.IsCurrent != (s.ID == phone.SessionID) {
			t.Fatalf("wrong current marker on %+v", s)
		}
	}

	if err := f.server.TerminateSession(ctx, phone.Token, phone.SessionID); !errors.Is(err, ErrCurrentSession) {
		t.Fatalf("expected ErrCurrentSession, got %v", err)
	}
	if err := f.server.TerminateSession(ctx, phone.Token, "01NOPE"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := f.server.TerminateSession(ctx, phone.Token, laptop.SessionID); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if _, err := f.server.Refresh(ctx, laptop.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected terminated session to be revoked, got %v", err)
	}

	n, err := f.server.TerminateOtherSessions(ctx, phone.Token)
	if err != nil || n != 1 {
		t.Fatalf("terminate others: n=%d err=%v", n, err)
	}
	if _, err := f.server.Refresh(ctx, tablet.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected tablet session revoked, got %v", err)
	}

	if err := f.server.Logout(ctx, phone.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.server.ListSessions(ctx, phone.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked after logout, got %v", err)
	}
}

func TestListSessionsPrunesDanglingIndex(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	grant := f.signIn(t, "a@b.com", session.Device{})

	if _, err := f.mr.SAdd("mock:usess:"+grant.User.ID, "ghost"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	list, err := f.server.ListSessions(ctx, grant.Token)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	members, err := f.mr.SMembers("mock:usess:" + grant.User.ID)
	if err != nil || len(members) != 1 {
		t.Fatalf("expected ghost pruned, members=%v err=%v", members, err)
	}
}

func TestProfileUpdate(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	grant := f.signIn(t, "a@b.com", session.Device{})
	f.signIn(t, "taken@b.com", session.Device{})

	upd := session.ProfileUpdate{FullName: "Alice Doe", Email: "a@b.com", Phone: "+15551234567", Address: "1 Main St", DateOfBirth: "1990-01-01"}
	user, err := f.server.UpdateProfile(ctx, grant.Token, upd)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if user.Name != "Alice Doe" || user.Phone != "+15551234567" {
		t.Fatalf("unexpected user %+v", user)
	}

	upd.Email = "taken@b.com"
	if _, err := f.server.UpdateProfile(ctx, grant.Token, upd); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}

	upd.Email = "alice@new.com"
	if _, err := f.server.UpdateProfile(ctx, grant.Token, upd); err != nil {
		t.Fatalf("move email: %v", err)
	}
	profile, err := f.server.Profile(ctx, grant.Token)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Email != "alice@new.com" || profile.ID != grant.User.ID {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if f.mr.Exists("mock:user:a@b.com") {
		t.Fatal("expected old email record removed")
	}
}

func TestRedisOutageMatchesErrUnavailable(t *testing.T) {
	f := newFixture(t, testConfig())
	f.mr.Close()
	err := f.server.RequestOTP(context.Background(), "a@b.com", "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
