package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/MrEthical07/goOTP/internal"
	"github.com/MrEthical07/goOTP/password"
	"github.com/MrEthical07/goOTP/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type userRecord struct {
	User         session.User `json:"user"`
	PasswordHash string       `json:"passwordHash,omitempty"`
}

// Register creates a password account. The caller signs in afterwards.
func (s *Server) Register(ctx context.Context, reg session.Registration) (session.User, error) {
	if err := s.latency(ctx); err != nil {
		return session.User{}, err
	}
	name := strings.TrimSpace(reg.Name)
	if len(name) < 2 || !validEmail(reg.Email) {
		return session.User{}, ErrInvalidRequest
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) {
			return session.User{}, ErrInvalidRequest
		}
		return session.User{}, unavailable("Register", err)
	}

	record := userRecord{
		User: session.User{
			ID:    uuid.NewString(),
			Email: internal.NormalizeEmail(reg.Email),
			Name:  name,
		},
		PasswordHash: hash,
	}
	created, err := s.createUser(ctx, &record)
	if err != nil {
		return session.User{}, err
	}
	if !created {
		return session.User{}, ErrAccountExists
	}
	return record.User, nil
}

// Login checks an email and password pair and opens a session.
func (s *Server) Login(ctx context.Context, email, pass string, device session.Device) (*Grant, error) {
	if err := s.latency(ctx); err != nil {
		return nil, err
	}
	if !validEmail(email) || pass == "" {
		return nil, ErrCredentialsRejected
	}
	email = internal.NormalizeEmail(email)

	if err := s.limiter.CheckLogin(ctx, email); err != nil {
		return nil, mapLimiterError("Login", err)
	}

	record, err := s.userByEmail(ctx, email)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("Login", err)
	}
	ok := false
	if record != nil && record.PasswordHash != "" {
		if ok, err = s.hasher.Verify(pass, record.PasswordHash); err != nil {
			s.logger.WarnContext(ctx, "stored password hash unreadable", "user_id", record.User.ID, "error", err)
			ok = false
		}
	}
	if !ok {
		if err := s.limiter.RecordLoginFailure(ctx, email); err != nil {
			return nil, mapLimiterError("Login", err)
		}
		return nil, ErrCredentialsRejected
	}

	if err := s.limiter.ResetLogin(ctx, email); err != nil {
		s.logger.WarnContext(ctx, "login counter reset failed", "error", err)
	}
	return s.openSession(ctx, record.User, device)
}

// Profile returns the account behind token.
func (s *Server) Profile(ctx context.Context, token string) (session.User, error) {
	if err := s.latency(ctx); err != nil {
		return session.User{}, err
	}
	claims, _, err := s.authorize(ctx, token)
	if err != nil {
		return session.User{}, err
	}
	record, err := s.userByID(ctx, claims.UID)
	if err != nil {
		return session.User{}, err
	}
	return record.User, nil
}

// UpdateProfile replaces the editable fields of the account behind token.
// Changing the email moves the account; the new address must be free.
func (s *Server) UpdateProfile(ctx context.Context, token string, upd session.ProfileUpdate) (session.User, error) {
	if err := s.latency(ctx); err != nil {
		return session.User{}, err
	}
	claims, _, err := s.authorize(ctx, token)
	if err != nil {
		return session.User{}, err
	}
	if !validEmail(upd.Email) || strings.TrimSpace(upd.FullName) == "" {
		return session.User{}, ErrInvalidRequest
	}

	record, err := s.userByID(ctx, claims.UID)
	if err != nil {
		return session.User{}, err
	}

	record.User.Name = strings.TrimSpace(upd.FullName)
	record.User.Phone = upd.Phone
	record.User.Address = upd.Address
	record.User.DateOfBirth = upd.DateOfBirth
	newEmail := internal.NormalizeEmail(upd.Email)

	if newEmail == record.User.Email {
		if err := s.putUser(ctx, record); err != nil {
			return session.User{}, err
		}
		return record.User, nil
	}

	oldEmail := record.User.Email
	record.User.Email = newEmail
	created, err := s.createUser(ctx, record)
	if err != nil {
		return session.User{}, err
	}
	if !created {
		return session.User{}, ErrAccountExists
	}
	if err := s.redis.Del(ctx, s.key("user", oldEmail)).Err(); err != nil {
		return session.User{}, unavailable("UpdateProfile", err)
	}
	return record.User, nil
}

func (s *Server) findOrCreateUser(ctx context.Context, email string) (session.User, error) {
	for {
		record, err := s.userByEmail(ctx, email)
		if err == nil {
			return record.User, nil
		}
		if !errors.Is(err, redis.Nil) {
			return session.User{}, unavailable("findOrCreateUser", err)
		}

		record = &userRecord{User: session.User{
			ID:    uuid.NewString(),
			Email: email,
			Name:  internal.LocalPart(email),
		}}
		created, err := s.createUser(ctx, record)
		if err != nil {
			return session.User{}, err
		}
		if created {
			return record.User, nil
		}
		// Lost a creation race; read the winner.
	}
}

// userByID resolves the uid index. A dangling index reads as a revoked
// session.
func (s *Server) userByID(ctx context.Context, uid string) (*userRecord, error) {
	email, err := s.redis.Get(ctx, s.key("uid", uid)).Result()
	if err == nil {
		var record *userRecord
		if record, err = s.userByEmail(ctx, email); err == nil {
			return record, nil
		}
	}
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionRevoked
	}
	return nil, unavailable("userByID", err)
}

func (s *Server) userByEmail(ctx context.Context, email string) (*userRecord, error) {
	raw, err := s.redis.Get(ctx, s.key("user", internal.NormalizeEmail(email))).Bytes()
	if err != nil {
		return nil, err
	}
	var record userRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// createUser stores record only if its email is free.
func (s *Server) createUser(ctx context.Context, record *userRecord) (bool, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return false, unavailable("createUser", err)
	}
	created, err := s.redis.SetNX(ctx, s.key("user", record.User.Email), data, 0).Result()
	if err != nil {
		return false, unavailable("createUser", err)
	}
	if !created {
		return false, nil
	}
	if err := s.redis.Set(ctx, s.key("uid", record.User.ID), record.User.Email, 0).Err(); err != nil {
		return false, unavailable("createUser", err)
	}
	return true, nil
}

func (s *Server) putUser(ctx context.Context, record *userRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return unavailable("putUser", err)
	}
	if err := s.redis.Set(ctx, s.key("user", record.User.Email), data, 0).Err(); err != nil {
		return unavailable("putUser", err)
	}
	return nil
}
