// Package log configures the process-wide structured logger. It follows the
// teacher's convention (document-chunker, sse-rag-service) of a single
// zap.Logger built once at startup and passed down by field, never a global
// package-level logger mutated from multiple goroutines.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap.Logger with the service name attached to
// every line, matching the teacher's zap.NewProduction() call sites.
func New(serviceName string) *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger.With(zap.String("service", serviceName))
}

// Field re-exports zap.Field so callers don't need to import zap directly
// for the common case.
type Field = zapcore.Field
