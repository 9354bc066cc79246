package mockapi

import (
	"context"
	"log/slog"
)

// Mailer delivers one-time codes out of band.
type Mailer interface {
	SendCode(ctx context.Context, email, code string) error
}

// LogMailer "delivers" codes by logging them. Only for the demo backend.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendCode(ctx context.Context, email, code string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "one-time code issued", "email", email, "code", code)
	return nil
}
