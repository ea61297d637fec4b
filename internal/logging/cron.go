package logging

import (
	"log/slog"
)

// CronLogger lets robfig/cron write through slog. It satisfies cron.Logger.
type CronLogger struct {
	logger *slog.Logger
}

// NewCronLogger wraps logger, or slog.Default() when nil.
func NewCronLogger(logger *slog.Logger) *CronLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronLogger{logger: logger}
}

// Info is logged at debug level. cron reports every wake-up through it.
func (c *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debug(msg, keysAndValues...)
}

// Error logs a recovered panic or a skipped run.
func (c *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.With(Err(err)).Error(msg, keysAndValues...)
}
