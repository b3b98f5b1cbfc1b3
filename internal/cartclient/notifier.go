package cartclient

import "go.uber.org/zap"

// Notifier shows short, non-blocking messages to the shopper.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Success(msg string) {
	n.logger.Info(msg, zap.String("notification", "success"))
}

func (n *LogNotifier) Error(msg string) {
	n.logger.Warn(msg, zap.String("notification", "error"))
}
