package goOTP

import (
	"errors"
	"strings"
	"time"
)

// Config is the full engine configuration. Start from [DefaultConfig] and
// override fields; [Builder.Build] calls [Config.Validate].
type Config struct {
	Challenge ChallengeConfig `koanf:"challenge"`
	Session   SessionConfig   `koanf:"session"`
	Backend   BackendConfig   `koanf:"backend"`
	Routes    RouteConfig     `koanf:"routes"`
	Flows     FlowConfig      `koanf:"flows"`
	Audit     AuditConfig     `koanf:"audit"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig controls the client side of the one-time code challenge.
type ChallengeConfig struct {
	CodeLength     int           `koanf:"code_length"`
	MaxAttempts    int           `koanf:"max_attempts"`
	ResendCooldown time.Duration `koanf:"resend_cooldown"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls where client state is kept and when tokens are
// refreshed.
type SessionConfig struct {
	// RedisPrefix namespaces auth_token and user_data when Redis storage is used.
	RedisPrefix string `koanf:"redis_prefix"`
	// HandoffPrefix namespaces the auth_email slot.
	HandoffPrefix string        `koanf:"handoff_prefix"`
	HandoffTTL    time.Duration `koanf:"handoff_ttl"`
	// RefreshLeeway is how long before token expiry the refresh runs.
	RefreshLeeway time.Duration `koanf:"refresh_leeway"`
	// RefreshRetry delays a scheduled refresh that could not run.
	RefreshRetry time.Duration `koanf:"refresh_retry"`
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig configures the mock backend the Builder creates when no
// Backend is supplied.
type BackendConfig struct {
	Latency         time.Duration `koanf:"latency"`
	FixedCode       string        `koanf:"fixed_code"`
	CodeTTL         time.Duration `koanf:"code_ttl"`
	MaxCodeAttempts int           `koanf:"max_code_attempts"`
	TokenTTL        time.Duration `koanf:"token_ttl"`
	// SigningSecret is the HS256 key for mock tokens (at least 32 bytes).
	SigningSecret string `koanf:"signing_secret"`
	Issuer        string `koanf:"issuer"`
	KeyPrefix     string `koanf:"key_prefix"`
}

/*
====================================
ROUTE CONFIG
====================================
*/

// RouteConfig names the entry points the guard redirects between.
type RouteConfig struct {
	LoginPath    string   `koanf:"login_path"`
	VerifyPath   string   `koanf:"verify_path"`
	RegisterPath string   `koanf:"register_path"`
	HomePath     string   `koanf:"home_path"`
	Protected    []string `koanf:"protected"`
}

/*
====================================
FLOW REGISTRY CONFIG
====================================
*/

// FlowConfig controls the per-scope flow registry behind [Engine.Flow].
type FlowConfig struct {
	IdleTTL time.Duration `koanf:"idle_ttl"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `koanf:"enabled"`
	BufferSize int  `koanf:"buffer_size"`
	DropIfFull bool `koanf:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `koanf:"enabled"`
	EnableLatencyHistograms bool `koanf:"enable_latency_histograms"`
}

// DefaultConfig returns the configuration of the demo dashboard: six digit
// codes, three attempts, a 60 second resend cooldown, and a refresh one
// minute before token expiry.
func DefaultConfig() Config {
	return Config{
		Challenge: ChallengeConfig{
			CodeLength:     6,
			MaxAttempts:    3,
			ResendCooldown: 60 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:   "otp",
			HandoffPrefix: "otp-handoff",
			HandoffTTL:    30 * time.Minute,
			RefreshLeeway: 60 * time.Second,
			RefreshRetry:  5 * time.Second,
		},
		Backend: BackendConfig{
			Latency:         time.Second,
			FixedCode:       "123456",
			CodeTTL:         10 * time.Minute,
			MaxCodeAttempts: 5,
			TokenTTL:        time.Hour,
			Issuer:          "goOTP-mock",
			KeyPrefix:       "mock",
		},
		Routes: RouteConfig{
			LoginPath:    "/auth/login",
			VerifyPath:   "/auth/verify",
			RegisterPath: "/auth/register",
			HomePath:     "/dashboard",
			Protected:    []string{"/dashboard"},
		},
		Flows: FlowConfig{
			IdleTTL: 30 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Routes.Protected = append([]string(nil), cfg.Routes.Protected...)
	return out
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if c.Challenge.CodeLength < 4 || c.Challenge.CodeLength > 10 {
		return errors.New("Challenge.CodeLength must be between 4 and 10")
	}
	if c.Challenge.MaxAttempts < 1 {
		return errors.New("Challenge.MaxAttempts must be >= 1")
	}
	if c.Challenge.ResendCooldown < 0 {
		return errors.New("Challenge.ResendCooldown must be >= 0")
	}
	if c.Challenge.ResendCooldown%time.Second != 0 {
		return errors.New("Challenge.ResendCooldown must be a whole number of seconds")
	}

	if c.Session.HandoffTTL <= 0 {
		return errors.New("Session.HandoffTTL must be > 0")
	}
	if c.Session.RefreshLeeway < 0 {
		return errors.New("Session.RefreshLeeway must be >= 0")
	}
	if c.Session.RefreshRetry <= 0 {
		return errors.New("Session.RefreshRetry must be > 0")
	}
	if c.Session.RedisPrefix != "" && c.Session.RedisPrefix == c.Session.HandoffPrefix {
		return errors.New("Session.HandoffPrefix must differ from Session.RedisPrefix")
	}

	if c.Backend.FixedCode != "" && len(c.Backend.FixedCode) != c.Challenge.CodeLength {
		return errors.New("Backend.FixedCode length must equal Challenge.CodeLength")
	}
	if c.Backend.MaxCodeAttempts <= c.Challenge.MaxAttempts {
		return errors.New("Backend.MaxCodeAttempts must exceed Challenge.MaxAttempts")
	}
	if c.Backend.TokenTTL <= c.Session.RefreshLeeway {
		return errors.New("Backend.TokenTTL must exceed Session.RefreshLeeway")
	}

	for _, r := range []struct{ name, path string }{
		{"Routes.LoginPath", c.Routes.LoginPath},
		{"Routes.VerifyPath", c.Routes.VerifyPath},
		{"Routes.RegisterPath", c.Routes.RegisterPath},
		{"Routes.HomePath", c.Routes.HomePath},
	} {
		if !strings.HasPrefix(r.path, "/") {
			return errors.New(r.name + " must be an absolute path")
		}
	}
	for _, p := range c.Routes.Protected {
		if !strings.HasPrefix(p, "/") {
			return errors.New("Routes.Protected entries must be absolute paths")
		}
	}
	if pathUnder(c.Routes.LoginPath, c.Routes.Protected) {
		return errors.New("Routes.LoginPath must not be protected")
	}

	if c.Flows.IdleTTL <= 0 {
		return errors.New("Flows.IdleTTL must be > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be > 0")
	}
	return nil
}
