package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// serverConfig holds the process settings that are not engine settings.
type serverConfig struct {
	Addr          string `koanf:"addr"`
	RedisAddr     string `koanf:"redis_addr"`
	LogFormat     string `koanf:"log_format"`
	LogLevel      string `koanf:"log_level"`
	SecureCookies bool   `koanf:"secure_cookies"`
	TrustProxy    bool   `koanf:"trust_proxy"`
}

// fileConfig is the layout of the YAML configuration file.
type fileConfig struct {
	Server serverConfig `koanf:"server"`
	Engine goOTP.Config `koanf:"engine"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Server: serverConfig{
			Addr:      ":8080",
			LogFormat: "json",
			LogLevel:  "info",
		},
		Engine: goOTP.DefaultConfig(),
	}
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"addr":            "server.addr",
	"redis-addr":      "server.redis_addr",
	"log-format":      "server.log_format",
	"log-level":       "server.log_level",
	"secure-cookies":  "server.secure_cookies",
	"trust-proxy":     "server.trust_proxy",
	"latency":         "engine.backend.latency",
	"fixed-code":      "engine.backend.fixed_code",
	"signing-secret":  "engine.backend.signing_secret",
	"token-ttl":       "engine.backend.token_ttl",
	"max-attempts":    "engine.challenge.max_attempts",
	"resend-cooldown": "engine.challenge.resend_cooldown",
	"audit":           "engine.audit.enabled",
}

func addConfigFlags(fs *pflag.FlagSet) {
	def := defaultFileConfig()
	fs.String("config", "", "YAML configuration file")
	fs.String("addr", def.Server.Addr, "HTTP listen address")
	fs.String("redis-addr", def.Server.RedisAddr, "Redis address; empty starts an embedded miniredis")
	fs.String("log-format", def.Server.LogFormat, "log format (json or text)")
	fs.String("log-level", def.Server.LogLevel, "log level (debug, info, warn, error)")
	fs.Bool("secure-cookies", def.Server.SecureCookies, "mark the scope cookie Secure")
	fs.Bool("trust-proxy", def.Server.TrustProxy, "take the client IP from X-Forwarded-For")
	fs.Duration("latency", def.Engine.Backend.Latency, "simulated backend latency")
	fs.String("fixed-code", def.Engine.Backend.FixedCode, "fixed one-time code; empty sends random codes")
	fs.String("signing-secret", "", "HS256 token secret; empty generates one per process")
	fs.Duration("token-ttl", def.Engine.Backend.TokenTTL, "access token lifetime")
	fs.Int("max-attempts", def.Engine.Challenge.MaxAttempts, "code attempts per challenge")
	fs.Duration("resend-cooldown", def.Engine.Challenge.ResendCooldown, "resend cooldown")
	fs.Bool("audit", def.Engine.Audit.Enabled, "log audit events")
}

// loadConfig layers defaults, the optional YAML file and explicitly set
// flags, in that order.
func loadConfig(fs *pflag.FlagSet) (fileConfig, error) {
	cfg := defaultFileConfig()
	k := koanf.New(".")

	path, _ := fs.GetString("config")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("load %s: %w", path, err)
		}
	}

	provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return cfg, fmt.Errorf("load flags: %w", err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Engine.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newLogger(format, level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'json' or 'text'", format)
	}
}

// describe renders cfg as YAML with the signing secret masked.
func describe(cfg fileConfig, w io.Writer) error {
	if cfg.Engine.Backend.SigningSecret != "" {
		cfg.Engine.Backend.SigningSecret = strings.Repeat("*", 8)
	}
	out, err := yaml.Parser().Marshal(configMap(cfg))
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// configMap mirrors the koanf tags of fileConfig.
func configMap(s fileConfig) map[string]interface{} {
	e := s.Engine
	return map[string]interface{}{
		"server": map[string]interface{}{
			"addr":           s.Server.Addr,
			"redis_addr":     s.Server.RedisAddr,
			"log_format":     s.Server.LogFormat,
			"log_level":      s.Server.LogLevel,
			"secure_cookies": s.Server.SecureCookies,
			"trust_proxy":    s.Server.TrustProxy,
		},
		"engine": map[string]interface{}{
			"challenge": map[string]interface{}{
				"code_length":     e.Challenge.CodeLength,
				"max_attempts":    e.Challenge.MaxAttempts,
				"resend_cooldown": durationString(e.Challenge.ResendCooldown),
			},
			"session": map[string]interface{}{
				"redis_prefix":   e.Session.RedisPrefix,
				"handoff_prefix": e.Session.HandoffPrefix,
				"handoff_ttl":    durationString(e.Session.HandoffTTL),
				"refresh_leeway": durationString(e.Session.RefreshLeeway),
				"refresh_retry":  durationString(e.Session.RefreshRetry),
			},
			"backend": map[string]interface{}{
				"latency":           durationString(e.Backend.Latency),
				"fixed_code":        e.Backend.FixedCode,
				"code_ttl":          durationString(e.Backend.CodeTTL),
				"max_code_attempts": e.Backend.MaxCodeAttempts,
				"token_ttl":         durationString(e.Backend.TokenTTL),
				"signing_secret":    e.Backend.SigningSecret,
				"issuer":            e.Backend.Issuer,
				"key_prefix":        e.Backend.KeyPrefix,
			},
			"routes": map[string]interface{}{
				"login_path":    e.Routes.LoginPath,
				"verify_path":   e.Routes.VerifyPath,
				"register_path": e.Routes.RegisterPath,
				"home_path":     e.Routes.HomePath,
				"protected":     e.Routes.Protected,
			},
			"flows": map[string]interface{}{
				"idle_ttl": durationString(e.Flows.IdleTTL),
			},
			"audit": map[string]interface{}{
				"enabled":      e.Audit.Enabled,
				"buffer_size":  e.Audit.BufferSize,
				"drop_if_full": e.Audit.DropIfFull,
			},
			"metrics": map[string]interface{}{
				"enabled":                   e.Metrics.Enabled,
				"enable_latency_histograms": e.Metrics.EnableLatencyHistograms,
			},
		},
	}
}

func durationString(d time.Duration) string {
	return d.String()
}
