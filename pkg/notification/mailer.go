package notification

import (
	"context"

	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"
)

// Mailer delivers one notification to its recipient.
type Mailer interface {
	Send(ctx context.Context, n model.Notification) error
}

// LogMailer writes notifications to the log instead of sending them.
type LogMailer struct {
	log *logger.Logger
}

func NewLogMailer(log *logger.Logger) *LogMailer {
	return &LogMailer{log: log.With("component", "log_mailer")}
}

func (m *LogMailer) Send(_ context.Context, n model.Notification) error {
	m.log.Info("Notification delivered", "to", n.To, "subject", n.Subject, "body", n.Body)
	return nil
}
