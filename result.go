package goOTP

import "github.com/MrEthical07/goOTP/session"

// Result is the tagged outcome of a sign-in operation: either a Session or
// an error with its [ErrorKind]. The HTTP shell renders it without
// inspecting error identities.
type Result struct {
	Session *session.Session
	Kind    ErrorKind
	Err     error
}

// Ok wraps a successful sign-in.
func Ok(s *session.Session) Result {
	return Result{Session: s}
}

// Err wraps a failure and classifies it.
func Err(err error) Result {
	return Result{Kind: KindOf(err), Err: err}
}

// ResultOf folds a (session, error) pair into a [Result].
func ResultOf(s *session.Session, err error) Result {
	if err != nil {
		return Err(err)
	}
	return Ok(s)
}

// IsOk reports whether the result carries a session.
func (r Result) IsOk() bool {
	return r.Err == nil && r.Session != nil
}
