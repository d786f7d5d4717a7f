package auth

import (
	"context"
	"log/slog"
)

// RecoveryMessage is what a user needs to finish a password reset.
type RecoveryMessage struct {
	UserID string
	Email  string
	Secret string
	Link   string
}

// Mailer delivers password recovery messages.
type Mailer interface {
	SendRecovery(ctx context.Context, msg RecoveryMessage) error
}

// LogMailer writes recovery links to the log instead of sending mail.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendRecovery implements Mailer.
func (m *LogMailer) SendRecovery(ctx context.Context, msg RecoveryMessage) error {
	m.logger.InfoContext(ctx, "password recovery requested", "user_id", msg.UserID, "email", msg.Email, "link", msg.Link)
	return nil
}
