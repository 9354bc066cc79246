package goOTP

import (
	"strings"
	"time"

	"github.com/MrEthical07/goOTP/clock"
)

// State is the position of a [Flow] in the sign-in lifecycle.
type State uint8

const (
	StateUnauthenticated State = iota
	StateOtpRequested
	StateVerifying
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateOtpRequested:
		return "otp_requested"
	case StateVerifying:
		return "verifying"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Challenge is a snapshot of the outstanding one-time code challenge.
type Challenge struct {
	Email                 string    `json:"email"`
	IssuedAt              time.Time `json:"issuedAt"`
	AttemptsRemaining     int       `json:"attemptsRemaining"`
	ResendCooldownSeconds int       `json:"resendCooldownSeconds"`
}

// challenge is the live, flow-owned state behind [Challenge]. The cooldown
// is an explicit countdown decremented once per second by a clock timer.
type challenge struct {
	email     string
	issuedAt  time.Time
	attempts  int
	cooldown  int
	countdown clock.Timer
}

func (c *challenge) snapshot() Challenge {
	return Challenge{
		Email:                 c.email,
		IssuedAt:              c.issuedAt,
		AttemptsRemaining:     c.attempts,
		ResendCooldownSeconds: c.cooldown,
	}
}

func (c *challenge) stopCountdown() {
	if c.countdown != nil {
		c.countdown.Stop()
		c.countdown = nil
	}
}

func (c *challenge) matches(email string) bool {
	return email == "" || strings.EqualFold(strings.TrimSpace(email), c.email)
}
