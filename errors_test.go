package goOTP

import (
	"errors"
	"fmt"
	"testing"

	"github.com/MrEthical07/goOTP/mockapi"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{ErrInvalidCode, KindInvalidCode},
		{fmt.Errorf("wrap: %w", ErrCooldownActive), KindCooldownActive},
		{&ValidationError{Fields: map[string]string{"email": "bad"}}, KindInvalidInput},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
	if KindAttemptsExhausted.String() != "attempts_exhausted" {
		t.Fatalf("unexpected name %q", KindAttemptsExhausted.String())
	}
}

func TestMapBackendError(t *testing.T) {
	cases := []struct {
		in   error
		want error
	}{
		{mockapi.ErrInvalidRequest, ErrInvalidInput},
		{mockapi.ErrCodeMismatch, ErrInvalidCode},
		{mockapi.ErrCodeNotFound, ErrInvalidCode},
		{mockapi.ErrCodeAttemptsExceeded, ErrAttemptsExhausted},
		{mockapi.ErrCredentialsRejected, ErrCredentialsRejected},
		{mockapi.ErrAccountExists, ErrAccountExists},
		{mockapi.ErrRateLimited, ErrRateLimited},
		{mockapi.ErrTokenExpired, ErrSessionExpired},
		{mockapi.ErrSessionRevoked, ErrSessionExpired},
		{mockapi.ErrUnavailable, ErrBackendUnavailable},
	}
	for _, tc := range cases {
		if got := mapBackendError(tc.in); !errors.Is(got, tc.want) {
			t.Fatalf("mapBackendError(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if !errors.Is(mapBackendError(mockapi.ErrTokenInvalid), errAuthLost) {
		t.Fatal("expected invalid token to mark auth lost")
	}
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"phone": "bad", "email": "bad"}}
	if got := err.Error(); got != "invalid input: email: bad; phone: bad" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestResult(t *testing.T) {
	if r := ResultOf(nil, ErrRateLimited); r.IsOk() || r.Kind != KindRateLimited {
		t.Fatalf("unexpected result %+v", r)
	}
}
