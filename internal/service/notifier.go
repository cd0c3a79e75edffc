package service

import (
	"github.com/eloscloud/caixinha-banking-go/internal/infra/observability"

	"go.uber.org/zap"
)

// LogNotifier reports mutation lifecycle transitions through the
// structured log and the request counters. Each mutation emits exactly
// one loading event followed by exactly one success or error event.
type LogNotifier struct {
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewLogNotifier creates a notifier backed by zap and Prometheus.
func NewLogNotifier(logger *zap.Logger, metrics *observability.Metrics) *LogNotifier {
	return &LogNotifier{logger: logger, metrics: metrics}
}

func (n *LogNotifier) Loading(operation string) {
	n.logger.Info("operation started", zap.String("operation", operation))
}

func (n *LogNotifier) Success(operation, message string) {
	n.metrics.IncrRequest("success")
	n.logger.Info("operation succeeded",
		zap.String("operation", operation),
		zap.String("message", message))
}

func (n *LogNotifier) Error(operation string, err error) {
	n.metrics.IncrRequest("error")
	n.logger.Error("operation failed",
		zap.String("operation", operation),
		zap.Error(err))
}
