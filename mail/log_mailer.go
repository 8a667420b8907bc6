package mail

import (
	"context"

	"github.com/Yellowatch/boxumco"
	"go.uber.org/zap"
)

// LogMailer logs every message at info level and never fails.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer returns a LogMailer writing to logger.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger.Named("mail")}
}

func (m *LogMailer) Send(_ context.Context, msg boxumco.Email) error {
	m.logger.Info("email",
		zap.String("kind", msg.Kind),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
