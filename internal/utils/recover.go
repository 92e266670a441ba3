package utils

import (
	"fmt"

	"github.com/asmejkal/DustyBot-sub000/internal/metrics"

	"go.uber.org/zap"
)

// Recover must be deferred directly. It stops a panic in one pipeline from
// taking down the event loop and records it.
func Recover(logger *zap.Logger, pipeline string) {
	if r := recover(); r != nil {
		metrics.EventPanics.WithLabelValues(pipeline).Inc()
		logger.Error("recovered panic", zap.String("pipeline", pipeline), zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
	}
}
