package goOTP

import (
	"context"
	"io"
	"log/slog"

	"github.com/MrEthical07/goOTP/internal/audit"
)

// AuditEvent is one auth lifecycle record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// Audit event types.
const (
	AuditChallengeRequest = "challenge_request"
	AuditChallengeVerify  = "challenge_verify"
	AuditChallengeResend  = "challenge_resend"
	AuditPasswordLogin    = "password_login"
	AuditRegistration     = "registration"
	AuditLogout           = "logout"
	AuditRefresh          = "refresh"
	AuditSessionExpired   = "session_expired"
	AuditSessionTerminate = "session_terminate"
	AuditProfileUpdate    = "profile_update"
	AuditRouteDenied      = "route_denied"
)

// NewChannelSink returns a sink that buffers events on a channel.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogSink returns a sink that logs events through logger.
func NewSlogSink(logger *slog.Logger) *audit.SlogSink {
	return audit.NewSlogSink(logger)
}

func (e *Engine) emitAudit(ctx context.Context, eventType, scope string, success bool, err error, metadata map[string]string) {
	if e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: e.clock.Now(),
		EventType: eventType,
		Scope:     scope,
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = KindOf(err).String()
	}
	if s, ok := metadata["user_id"]; ok {
		event.UserID = s
		delete(metadata, "user_id")
	}
	if s, ok := metadata["session_id"]; ok {
		event.SessionID = s
		delete(metadata, "session_id")
	}
	if len(event.Metadata) == 0 {
		event.Metadata = nil
	}
	e.audit.Emit(ctx, event)
}
