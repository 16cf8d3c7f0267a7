package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes notices to the log instead of sending them.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Send logs the message.
func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	n.logger.Info("notice",
		zap.String("to", msg.To.String()),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	return nil
}
