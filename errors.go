package goOTP

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrInvalidInput reports malformed caller input. No state is changed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCode reports a wrong one-time code; one attempt is consumed.
	ErrInvalidCode = errors.New("invalid code")
	// ErrAttemptsExhausted reports a challenge with no attempts left. A new
	// RequestChallenge is required.
	ErrAttemptsExhausted = errors.New("attempts exhausted")
	// ErrCooldownActive reports a resend inside the cooldown window.
	ErrCooldownActive = errors.New("resend cooldown active")
	// ErrCredentialsRejected reports a failed password login.
	ErrCredentialsRejected = errors.New("credentials rejected")
	// ErrNoPendingCredential reports a verify step without a captured email.
	ErrNoPendingCredential = errors.New("no pending credential")
	// ErrNotAuthenticated reports an operation that needs a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired reports a session dropped after expiry or revocation.
	ErrSessionExpired = errors.New("session expired")
	// ErrAccountExists reports a registration or email change to a taken address.
	ErrAccountExists = errors.New("account already exists")
	// ErrAlreadyAuthenticated reports a sign-in attempt while a session is
	// stored. Log out first.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	// ErrCurrentSession reports an attempt to terminate the session in use.
	ErrCurrentSession = errors.New("cannot terminate the current session")
	// ErrSessionNotFound reports an unknown session ID on termination.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRateLimited reports backend throttling.
	ErrRateLimited = errors.New("rate limited")
	// ErrBackendUnavailable reports a backend or storage failure.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrRequestInFlight reports a call made while the flow is busy.
	ErrRequestInFlight = errors.New("request already in flight")
	// ErrFlowClosed reports a call on a closed flow or engine.
	ErrFlowClosed = errors.New("flow closed")
)

// ValidationError lists per-field problems of a form submission. It
// matches ErrInvalidInput through errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + e.Fields[name]
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// ErrorKind classifies an error for callers that switch on outcome rather
// than on error identity.
type ErrorKind uint8

const (
	KindNone ErrorKind = iota
	KindInvalidInput
	KindInvalidCode
	KindAttemptsExhausted
	KindCooldownActive
	KindCredentialsRejected
	KindNoPendingCredential
	KindNotAuthenticated
	KindSessionExpired
	KindAccountExists
	KindConflict
	KindNotFound
	KindRateLimited
	KindBusy
	KindUnavailable
	KindInternal
)

var kindNames = [...]string{
	KindNone:                "none",
	KindInvalidInput:        "invalid_input",
	KindInvalidCode:         "invalid_code",
	KindAttemptsExhausted:   "attempts_exhausted",
	KindCooldownActive:      "cooldown_active",
	KindCredentialsRejected: "credentials_rejected",
	KindNoPendingCredential: "no_pending_credential",
	KindNotAuthenticated:    "not_authenticated",
	KindSessionExpired:      "session_expired",
	KindAccountExists:       "account_exists",
	KindConflict:            "conflict",
	KindNotFound:            "not_found",
	KindRateLimited:         "rate_limited",
	KindBusy:                "busy",
	KindUnavailable:         "unavailable",
	KindInternal:            "internal",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrInvalidCode, KindInvalidCode},
	{ErrAttemptsExhausted, KindAttemptsExhausted},
	{ErrCooldownActive, KindCooldownActive},
	{ErrCredentialsRejected, KindCredentialsRejected},
	{ErrNoPendingCredential, KindNoPendingCredential},
	{ErrNotAuthenticated, KindNotAuthenticated},
	{ErrSessionExpired, KindSessionExpired},
	{ErrAccountExists, KindAccountExists},
	{ErrCurrentSession, KindConflict},
	{ErrAlreadyAuthenticated, KindConflict},
	{ErrSessionNotFound, KindNotFound},
	{ErrRateLimited, KindRateLimited},
	{ErrRequestInFlight, KindBusy},
	{ErrFlowClosed, KindUnavailable},
	{ErrBackendUnavailable, KindUnavailable},
}

// KindOf returns the [ErrorKind] of err. Unrecognized errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}
