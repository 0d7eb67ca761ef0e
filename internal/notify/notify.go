package notify

import "go.uber.org/zap"

// Sink receives user-facing messages. Calls must not block.
type Sink interface {
	Success(message string)
	Failure(message string)
}

// LogSink writes notifications to the structured log, tagged so the
// console can tail them
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.With(zap.String("channel", "notification"))}
}

func (s *LogSink) Success(message string) {
	s.logger.Info(message, zap.String("kind", "success"))
}

func (s *LogSink) Failure(message string) {
	s.logger.Warn(message, zap.String("kind", "failure"))
}
