package mockapi

import (
	"errors"
	"time"
)

// DefaultTestCode is the code every challenge accepts in mock mode.
const DefaultTestCode = "123456"

// Config tunes the simulated backend.
type Config struct {
	// Latency is slept before every endpoint.
	Latency time.Duration
	// FixedCode, when set, replaces random code generation.
	FixedCode  string
	CodeLength int
	CodeTTL    time.Duration
	// MaxCodeAttempts is the server-side failure budget per issued code.
	MaxCodeAttempts int

	MaxCodeRequests     int
	MaxCodeRequestsByIP int
	CodeRequestWindow   time.Duration
	MaxLoginFailures    int
	LoginCooldown       time.Duration

	KeyPrefix string
}

// DefaultConfig mirrors the demo backend: one second latency and the fixed
// test code.
func DefaultConfig() Config {
	return Config{
		Latency:             time.Second,
		FixedCode:           DefaultTestCode,
		CodeLength:          6,
		CodeTTL:             10 * time.Minute,
		MaxCodeAttempts:     5,
		MaxCodeRequests:     5,
		MaxCodeRequestsByIP: 20,
		CodeRequestWindow:   15 * time.Minute,
		MaxLoginFailures:    5,
		LoginCooldown:       15 * time.Minute,
		KeyPrefix:           "mock",
	}
}

// Validate checks the configuration for obviously unusable values.
func (c Config) Validate() error {
	if c.Latency < 0 {
		return errors.New("mockapi: latency must be >= 0")
	}
	if c.CodeLength < 4 || c.CodeLength > 10 {
		return errors.New("mockapi: code length must be between 4 and 10")
	}
	if c.FixedCode != "" && len(c.FixedCode) != c.CodeLength {
		return errors.New("mockapi: fixed code length must equal code length")
	}
	if c.CodeTTL <= 0 {
		return errors.New("mockapi: code TTL must be > 0")
	}
	if c.MaxCodeAttempts < 1 {
		return errors.New("mockapi: max code attempts must be >= 1")
	}
	if (c.MaxCodeRequests > 0 || c.MaxCodeRequestsByIP > 0) && c.CodeRequestWindow <= 0 {
		return errors.New("mockapi: code request window must be > 0")
	}
	if c.MaxLoginFailures > 0 && c.LoginCooldown <= 0 {
		return errors.New("mockapi: login cooldown must be > 0")
	}
	return nil
}
