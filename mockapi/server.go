package mockapi

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/MrEthical07/goOTP/clock"
	"github.com/MrEthical07/goOTP/internal/rate"
	"github.com/MrEthical07/goOTP/internal/stores"
	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/password"
	"github.com/redis/go-redis/v9"
)

// Server is the simulated backend. It is safe for concurrent use.
type Server struct {
	cfg     Config
	redis   redis.UniversalClient
	clock   clock.Clock
	tokens  *jwt.Manager
	hasher  *password.Hasher
	codes   *stores.CodeStore
	limiter *rate.Limiter
	mailer  Mailer
	logger  *slog.Logger
}

// Option customizes a [Server].
type Option func(*Server)

// WithClock sets the clock used for latency, code expiry and session times.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithLogger sets the logger for backend diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMailer replaces the default [LogMailer].
func WithMailer(m Mailer) Option {
	return func(s *Server) { s.mailer = m }
}

// WithHasher replaces the default Argon2id hasher.
func WithHasher(h *password.Hasher) Option {
	return func(s *Server) { s.hasher = h }
}

// New validates cfg and returns a [Server] storing its state in rdb and
// minting tokens with tokens.
func New(cfg Config, rdb redis.UniversalClient, tokens *jwt.Manager, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rdb == nil {
		return nil, errors.New("mockapi: redis client is required")
	}
	if tokens == nil {
		return nil, errors.New("mockapi: token manager is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "mock"
	}

	s := &Server{
		cfg:    cfg,
		redis:  rdb,
		tokens: tokens,
		codes:  stores.NewCodeStore(rdb, cfg.KeyPrefix+":otc"),
		limiter: rate.New(rdb, rate.Config{
			MaxCodeRequests:     cfg.MaxCodeRequests,
			MaxCodeRequestsByIP: cfg.MaxCodeRequestsByIP,
			CodeRequestWindow:   cfg.CodeRequestWindow,
			MaxLoginFailures:    cfg.MaxLoginFailures,
			LoginCooldown:       cfg.LoginCooldown,
		}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.mailer == nil {
		s.mailer = LogMailer{Logger: s.logger}
	}
	if s.hasher == nil {
		h, err := password.NewHasher(password.DefaultConfig())
		if err != nil {
			return nil, err
		}
		s.hasher = h
	}
	return s, nil
}

// latency simulates the network round trip.
func (s *Server) latency(ctx context.Context) error {
	return s.clock.Sleep(ctx, s.cfg.Latency)
}

func (s *Server) key(parts ...string) string {
	return s.cfg.KeyPrefix + ":" + strings.Join(parts, ":")
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == strings.TrimSpace(email)
}

func mapLimiterError(op string, err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return ErrRateLimited
	}
	return unavailable(op, err)
}
