package mockapi

import (
	"context"
	"errors"

	"github.com/MrEthical07/goOTP/internal"
	"github.com/MrEthical07/goOTP/internal/stores"
	"github.com/MrEthical07/goOTP/session"
)

// RequestOTP issues a one-time code for email, replacing any outstanding
// one, and hands it to the mailer. ip feeds the per-IP throttle and may be
// empty.
func (s *Server) RequestOTP(ctx context.Context, email, ip string) error {
	if err := s.latency(ctx); err != nil {
		return err
	}
	if !validEmail(email) {
		return ErrInvalidRequest
	}
	email = internal.NormalizeEmail(email)

	if err := s.limiter.AllowCodeRequest(ctx, email, ip); err != nil {
		return mapLimiterError("RequestOTP", err)
	}

	code := s.cfg.FixedCode
	if code == "" {
		var err error
		if code, err = internal.NewOTP(s.cfg.CodeLength); err != nil {
			return unavailable("RequestOTP", err)
		}
	}

	now := s.clock.Now()
	record := &stores.CodeRecord{
		CodeHash:  internal.HashCode(email, code),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.cfg.CodeTTL).Unix(),
	}
	if err := s.codes.Save(ctx, email, record, s.cfg.CodeTTL); err != nil {
		return unavailable("RequestOTP", err)
	}

	if err := s.mailer.SendCode(ctx, email, code); err != nil {
		_ = s.codes.Delete(ctx, email)
		return unavailable("SendCode", err)
	}
	return nil
}

// VerifyOTP consumes the outstanding code for email. On a match it finds or
// creates the account (named after the address local part) and opens a
// session for device.
func (s *Server) VerifyOTP(ctx context.Context, email, code string, device session.Device) (*Grant, error) {
	if err := s.latency(ctx); err != nil {
		return nil, err
	}
	if !validEmail(email) || !internal.IsNumericCode(code, s.cfg.CodeLength) {
		return nil, ErrInvalidRequest
	}
	email = internal.NormalizeEmail(email)

	_, err := s.codes.Consume(ctx, email, internal.HashCode(email, code), s.cfg.MaxCodeAttempts, s.clock.Now())
	switch {
	case err == nil:
	case errors.Is(err, stores.ErrCodeMismatch):
		return nil, ErrCodeMismatch
	case errors.Is(err, stores.ErrCodeAttemptsExceeded):
		return nil, ErrCodeAttemptsExceeded
	case errors.Is(err, stores.ErrCodeNotFound):
		return nil, ErrCodeNotFound
	default:
		return nil, unavailable("VerifyOTP", err)
	}

	user, err := s.findOrCreateUser(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, user, device)
}
