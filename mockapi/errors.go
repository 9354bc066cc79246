package mockapi

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrRateLimited          = errors.New("too many requests")
	ErrCodeMismatch         = errors.New("code mismatch")
	ErrCodeAttemptsExceeded = errors.New("code attempts exceeded")
	ErrCodeNotFound         = errors.New("no outstanding code")
	ErrAccountExists        = errors.New("account already exists")
	ErrCredentialsRejected  = errors.New("invalid email or password")
	ErrTokenInvalid         = errors.New("token invalid")
	ErrTokenExpired         = errors.New("token expired")
	ErrSessionRevoked       = errors.New("session revoked")
	ErrSessionNotFound      = errors.New("session not found")
	ErrCurrentSession       = errors.New("cannot terminate the current session")
	ErrUnavailable          = errors.New("backend unavailable")
)

// unavailable wraps an infrastructure failure with an oops code. The result
// matches ErrUnavailable and the cause through errors.Is.
func unavailable(op string, err error) error {
	return oops.Code("MOCKAPI_UNAVAILABLE").
		With("operation", op).
		Wrap(fmt.Errorf("%w: %w", ErrUnavailable, err))
}
