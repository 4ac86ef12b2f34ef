package notifications

import (
	"context"

	"github.com/ducminhle1904/trade-guard/internal/alerts"
	"github.com/ducminhle1904/trade-guard/internal/logger"
)

// LogChannel writes alerts to the log; always registered so no accepted
// alert is lost when every remote channel is down.
type LogChannel struct {
	log *logger.Logger
}

func NewLogChannel(log *logger.Logger) *LogChannel {
	return &LogChannel{log: log}
}

func (l *LogChannel) Name() string {
	return "log"
}

func (l *LogChannel) Deliver(_ context.Context, a alerts.Alert) error {
	level := logger.LogLevelInfo
	switch a.Priority {
	case alerts.PriorityHigh:
		level = logger.LogLevelWarning
	case alerts.PriorityCritical:
		level = logger.LogLevelError
	}
	l.log.Log(level, "ALERT [%s/%s] %s: %s", a.Category, a.Priority, a.Title, a.Message)
	return nil
}
