package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/session"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Grant is the response to a successful sign-in or refresh.
type Grant struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	SessionID string       `json:"sessionId"`
	User      session.User `json:"user"`
}

type sessionRecord struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Device     session.Device `json:"device"`
	CreatedAt  time.Time      `json:"createdAt"`
	LastActive time.Time      `json:"lastActive"`
}

// Refresh exchanges a valid token for a new one on the same session.
func (s *Server) Refresh(ctx context.Context, token string) (*Grant, error) {
	if err := s.latency(ctx); err != nil {
		return nil, err
	}
	claims, record, err := s.authorize(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := s.userByID(ctx, claims.UID)
	if err != nil {
		return nil, err
	}

	record.LastActive = s.clock.Now()
	if err := s.putSession(ctx, record); err != nil {
		return nil, err
	}
	return s.grant(record.ID, user.User)
}

// Logout revokes the session behind token.
func (s *Server) Logout(ctx context.Context, token string) error {
	if err := s.latency(ctx); err != nil {
		return err
	}
	claims, _, err := s.authorize(ctx, token)
	if err != nil {
		return err
	}
	return s.deleteSessions(ctx, claims.UID, claims.SID)
}

// ListSessions returns the caller's sessions, most recently active first.
func (s *Server) ListSessions(ctx context.Context, token string) ([]session.DeviceSession, error) {
	if err := s.latency(ctx); err != nil {
		return nil, err
	}
	claims, _, err := s.authorize(ctx, token)
	if err != nil {
		return nil, err
	}

	records, err := s.userSessions(ctx, claims.UID)
	if err != nil {
		return nil, err
	}
	out := make([]session.DeviceSession, 0, len(records))
	for _, r := range records {
		out = append(out, session.DeviceSession{
			ID:         r.ID,
			Device:     r.Device,
			CreatedAt:  r.CreatedAt,
			LastActive: r.LastActive,
			IsCurrent:  r.ID == claims.SID,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out, nil
}

// TerminateSession revokes another session of the caller.
func (s *Server) TerminateSession(ctx context.Context, token, sessionID string) error {
	if err := s.latency(ctx); err != nil {
		return err
	}
	claims, _, err := s.authorize(ctx, token)
	if err != nil {
		return err
	}
	if sessionID == claims.SID {
		return ErrCurrentSession
	}

	member, err := s.redis.SIsMember(ctx, s.key("usess", claims.UID), sessionID).Result()
	if err != nil {
		return unavailable("TerminateSession", err)
	}
	if !member {
		return ErrSessionNotFound
	}
	return s.deleteSessions(ctx, claims.UID, sessionID)
}

// TerminateOtherSessions revokes every session of the caller except the
// current one and returns how many were removed.
func (s *Server) TerminateOtherSessions(ctx context.Context, token string) (int, error) {
	if err := s.latency(ctx); err != nil {
		return 0, err
	}
	claims, _, err := s.authorize(ctx, token)
	if err != nil {
		return 0, err
	}

	ids, err := s.redis.SMembers(ctx, s.key("usess", claims.UID)).Result()
	if err != nil {
		return 0, unavailable("TerminateOtherSessions", err)
	}
	others := ids[:0]
	for _, id := range ids {
		if id != claims.SID {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return 0, nil
	}
	if err := s.deleteSessions(ctx, claims.UID, others...); err != nil {
		return 0, err
	}
	return len(others), nil
}

// authorize verifies token and requires its session to still be registered.
func (s *Server) authorize(ctx context.Context, token string) (*jwt.Claims, *sessionRecord, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, ErrTokenExpired
		}
		return nil, nil, ErrTokenInvalid
	}

	raw, err := s.redis.Get(ctx, s.key("sess", claims.SID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil, ErrSessionRevoked
		}
		return nil, nil, unavailable("authorize", err)
	}
	var record sessionRecord
	if err := json.Unmarshal(raw, &record); err != nil || record.UserID != claims.UID {
		return nil, nil, ErrSessionRevoked
	}
	return claims, &record, nil
}

func (s *Server) openSession(ctx context.Context, user session.User, device session.Device) (*Grant, error) {
	now := s.clock.Now()
	record := &sessionRecord{
		ID:         ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		UserID:     user.ID,
		Device:     device,
		CreatedAt:  now,
		LastActive: now,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, unavailable("openSession", err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key("sess", record.ID), data, 0)
		pipe.SAdd(ctx, s.key("usess", user.ID), record.ID)
		return nil
	})
	if err != nil {
		return nil, unavailable("openSession", err)
	}
	return s.grant(record.ID, user)
}

func (s *Server) grant(sessionID string, user session.User) (*Grant, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, sessionID, user.Email)
	if err != nil {
		return nil, unavailable("grant", err)
	}
	return &Grant{
		Token:     token,
		ExpiresAt: expiresAt,
		SessionID: sessionID,
		User:      user,
	}, nil
}

func (s *Server) putSession(ctx context.Context, record *sessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return unavailable("putSession", err)
	}
	if err := s.redis.Set(ctx, s.key("sess", record.ID), data, 0).Err(); err != nil {
		return unavailable("putSession", err)
	}
	return nil
}

// userSessions loads every registered session of uid and prunes index
// entries whose record is gone.
func (s *Server) userSessions(ctx context.Context, uid string) ([]sessionRecord, error) {
	ids, err := s.redis.SMembers(ctx, s.key("usess", uid)).Result()
	if err != nil {
		return nil, unavailable("userSessions", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key("sess", id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("userSessions", err)
	}

	records := make([]sessionRecord, 0, len(values))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		var record sessionRecord
		if !ok || json.Unmarshal([]byte(raw), &record) != nil {
			stale = append(stale, ids[i])
			continue
		}
		records = append(records, record)
	}
	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.key("usess", uid), stale...).Err(); err != nil {
			s.logger.WarnContext(ctx, "session index prune failed", "user_id", uid, "error", err)
		}
	}
	return records, nil
}

func (s *Server) deleteSessions(ctx context.Context, uid string, ids ...string) error {
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = s.key("sess", id)
		members[i] = id
	}
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, s.key("usess", uid), members...)
		return nil
	})
	if err != nil {
		return unavailable("deleteSessions", err)
	}
	return nil
}
