package goOTP

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/goOTP/clock"
	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/mockapi"
	"github.com/MrEthical07/goOTP/session"
	"github.com/redis/go-redis/v9"
)

// Backend is the remote auth service a [Flow] talks to. *mockapi.Server
// implements it.
type Backend interface {
	RequestOTP(ctx context.Context, email, ip string) error
	VerifyOTP(ctx context.Context, email, code string, device session.Device) (*mockapi.Grant, error)
	Login(ctx context.Context, email, password string, device session.Device) (*mockapi.Grant, error)
	Register(ctx context.Context, reg session.Registration) (session.User, error)
	Refresh(ctx context.Context, token string) (*mockapi.Grant, error)
	Logout(ctx context.Context, token string) error
	Profile(ctx context.Context, token string) (session.User, error)
	UpdateProfile(ctx context.Context, token string, upd session.ProfileUpdate) (session.User, error)
	ListSessions(ctx context.Context, token string) ([]session.DeviceSession, error)
	TerminateSession(ctx context.Context, token, sessionID string) error
	TerminateOtherSessions(ctx context.Context, token string) (int, error)
}

var _ Backend = (*mockapi.Server)(nil)

// FederatedProvider is a third-party sign-in integration whose client state
// must be cleared on logout.
type FederatedProvider interface {
	Name() string
	SignOut(ctx context.Context, scope string) error
}

// errAuthLost marks backend errors that mean the token is no longer usable.
var errAuthLost = errors.New("auth lost")

// mapBackendError translates backend sentinels into the engine taxonomy.
// Errors that mean the stored token is dead wrap errAuthLost as well.
func mapBackendError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, mockapi.ErrInvalidRequest):
		return ErrInvalidInput
	case errors.Is(err, mockapi.ErrCodeMismatch), errors.Is(err, mockapi.ErrCodeNotFound):
		return ErrInvalidCode
	case errors.Is(err, mockapi.ErrCodeAttemptsExceeded):
		return ErrAttemptsExhausted
	case errors.Is(err, mockapi.ErrCredentialsRejected):
		return ErrCredentialsRejected
	case errors.Is(err, mockapi.ErrAccountExists):
		return ErrAccountExists
	case errors.Is(err, mockapi.ErrRateLimited):
		return ErrRateLimited
	case errors.Is(err, mockapi.ErrCurrentSession):
		return ErrCurrentSession
	case errors.Is(err, mockapi.ErrSessionNotFound):
		return ErrSessionNotFound
	case errors.Is(err, mockapi.ErrTokenExpired),
		errors.Is(err, mockapi.ErrTokenInvalid),
		errors.Is(err, mockapi.ErrSessionRevoked):
		return fmt.Errorf("%w: %w", ErrSessionExpired, errAuthLost)
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}

// mapStorageError wraps client storage failures.
func mapStorageError(err error) error {
	if err == nil || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

func newMockBackend(cfg Config, rdb redis.UniversalClient, c clock.Clock, logger *slog.Logger) (*mockapi.Server, error) {
	secret := []byte(cfg.Backend.SigningSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
	}
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Backend.TokenTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    secret,
		Issuer:        cfg.Backend.Issuer,
		Clock:         c,
	})
	if err != nil {
		return nil, err
	}

	mcfg := mockapi.DefaultConfig()
	mcfg.Latency = cfg.Backend.Latency
	mcfg.FixedCode = cfg.Backend.FixedCode
	mcfg.CodeLength = cfg.Challenge.CodeLength
	mcfg.CodeTTL = cfg.Backend.CodeTTL
	mcfg.MaxCodeAttempts = cfg.Backend.MaxCodeAttempts
	mcfg.KeyPrefix = cfg.Backend.KeyPrefix

	return mockapi.New(mcfg, rdb, tokens,
		mockapi.WithClock(c),
		mockapi.WithLogger(logger.With("component", "mockapi")),
	)
}
