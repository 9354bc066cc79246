package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addConfigFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(newFlags(t))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.LogFormat != "json" {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Engine.Challenge.MaxAttempts != 3 || cfg.Engine.Backend.Latency != time.Second {
		t.Fatalf("unexpected engine defaults %+v", cfg.Engine)
	}
}

func TestLoadConfigFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otpgate.yaml")
	yaml := `
server:
  addr: ":9090"
  log_format: text
engine:
  challenge:
    max_attempts: 5
    resend_cooldown: 30s
  backend:
    latency: 250ms
    max_code_attempts: 8
  routes:
    protected: ["/dashboard", "/settings"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(newFlags(t, "--config", path, "--addr", ":7070", "--latency", "0s"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("expected flag to win over file, got %q", cfg.Server.Addr)
	}
	if cfg.Server.LogFormat != "text" {
		t.Fatalf("expected file value kept, got %q", cfg.Server.LogFormat)
	}
	if cfg.Engine.Challenge.MaxAttempts != 5 || cfg.Engine.Challenge.ResendCooldown != 30*time.Second {
		t.Fatalf("unexpected challenge config %+v", cfg.Engine.Challenge)
	}
	if cfg.Engine.Backend.Latency != 0 {
		t.Fatalf("expected latency flag applied, got %v", cfg.Engine.Backend.Latency)
	}
	if cfg.Engine.Challenge.CodeLength != 6 || cfg.Engine.Backend.TokenTTL != time.Hour {
		t.Fatal("expected unset keys to keep defaults")
	}
	if len(cfg.Engine.Routes.Protected) != 2 {
		t.Fatalf("unexpected protected routes %v", cfg.Engine.Routes.Protected)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	if _, err := loadConfig(newFlags(t, "--max-attempts", "0")); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := loadConfig(newFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))); err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("json", "debug", &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Debug("hello")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}
	if _, err := newLogger("xml", "info", &buf); err == nil {
		t.Fatal("expected invalid format error")
	}
	if _, err := newLogger("text", "loud", &buf); err == nil {
		t.Fatal("expected invalid level error")
	}
}

func TestConfigCommandMasksSecret(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--signing-secret", "0123456789abcdef0123456789abcdef"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.Contains(out.String(), "0123456789abcdef") {
		t.Fatal("expected signing secret masked")
	}
	if !strings.Contains(out.String(), "max_attempts: 3") {
		t.Fatalf("expected engine settings in output, got:\n%s", out.String())
	}
}

func TestLoadtestCommand(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"loadtest", "--clients", "8", "--concurrency", "4"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, phase := range []string{"sign-in", "refresh", "guard", "logout"} {
		if !strings.Contains(out.String(), phase+": ops=8 failures=0") {
			t.Fatalf("expected clean %s phase, got:\n%s", phase, out.String())
		}
	}
}

func TestLoadtestRejectsBadOptions(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"loadtest", "--clients", "0"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for zero clients")
	}
}
