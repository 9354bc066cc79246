package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Storage keys written per client scope.
const (
	KeyAuthToken = "auth_token"
	KeyUserData  = "user_data"
	KeyAuthEmail = "auth_email"
)

// ErrNoSession is returned by [Store.Load] when the scope holds no usable
// session.
var ErrNoSession = errors.New("no session")

// ErrNoPending is returned by [Store.Pending] when the handoff slot is empty.
var ErrNoPending = errors.New("no pending credential")

// ErrInvalidSession is returned by [Store.Save] for sessions without a token
// or user email.
var ErrInvalidSession = errors.New("invalid session")

// Store is the single writer of a client's authentication state. Writes
// are last-write-wins and not atomic across keys: Save writes the profile
// before the token and Clear removes the token first, so a torn write
// always reads back as "no session".
type Store struct {
	local      Storage
	handoff    Storage
	handoffTTL time.Duration
}

// NewStore creates a [Store]. local holds auth_token and user_data with no
// expiry; handoff holds auth_email for handoffTTL.
func NewStore(local, handoff Storage, handoffTTL time.Duration) *Store {
	if handoff == nil {
		handoff = local
	}
	return &Store{
		local:      local,
		handoff:    handoff,
		handoffTTL: handoffTTL,
	}
}

func scopedKey(scope, key string) string {
	return scope + ":" + key
}

// Load returns the session stored for scope. A profile blob that no longer
// decodes is removed and reported as [ErrNoSession].
func (s *Store) Load(ctx context.Context, scope string) (*Session, error) {
	token, err := s.local.Get(ctx, scopedKey(scope, KeyAuthToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}

	raw, err := s.local.Get(ctx, scopedKey(scope, KeyUserData))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}

	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil || token == "" {
		if clearErr := s.Clear(ctx, scope); clearErr != nil {
			return nil, clearErr
		}
		return nil, ErrNoSession
	}

	return &Session{Token: token, User: user}, nil
}

// Save replaces the session stored for scope.
func (s *Store) Save(ctx context.Context, scope string, sess *Session) error {
	if sess == nil || sess.Token == "" || strings.TrimSpace(sess.User.Email) == "" {
		return ErrInvalidSession
	}

	data, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("encode user_data: %w", err)
	}
	if err := s.local.Set(ctx, scopedKey(scope, KeyUserData), string(data), 0); err != nil {
		return err
	}
	return s.local.Set(ctx, scopedKey(scope, KeyAuthToken), sess.Token, 0)
}

// UpdateUser rewrites user_data for an existing session.
func (s *Store) UpdateUser(ctx context.Context, scope string, user User) error {
	current, err := s.Load(ctx, scope)
	if err != nil {
		return err
	}
	current.User = user
	return s.Save(ctx, scope, current)
}

// Clear destroys the session stored for scope.
func (s *Store) Clear(ctx context.Context, scope string) error {
	return s.local.Delete(ctx, scopedKey(scope, KeyAuthToken), scopedKey(scope, KeyUserData))
}

// HasSession reports whether a session is stored for scope. Storage errors
// read as false.
func (s *Store) HasSession(ctx context.Context, scope string) bool {
	_, err := s.Load(ctx, scope)
	return err == nil
}

// SetPending writes email into the handoff slot.
func (s *Store) SetPending(ctx context.Context, scope, email string) error {
	if email == "" {
		return ErrNoPending
	}
	return s.handoff.Set(ctx, scopedKey(scope, KeyAuthEmail), email, s.handoffTTL)
}

// Pending returns the email held in the handoff slot.
func (s *Store) Pending(ctx context.Context, scope string) (string, error) {
	email, err := s.handoff.Get(ctx, scopedKey(scope, KeyAuthEmail))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNoPending
		}
		return "", err
	}
	if email == "" {
		return "", ErrNoPending
	}
	return email, nil
}

// ClearPending empties the handoff slot.
func (s *Store) ClearPending(ctx context.Context, scope string) error {
	return s.handoff.Delete(ctx, scopedKey(scope, KeyAuthEmail))
}
