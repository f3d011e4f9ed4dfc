package nasbench

import (
	"context"
	"time"
)

// Logger is the structured logging contract used by the store. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder receives one observation per store operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// Operation names reported to MetricsRecorder.
const (
	OpFindBest     = "find_best"
	OpMoreInfo     = "more_info"
	OpQueryByIndex = "query_by_index"
	OpReload       = "reload"
	OpClearParams  = "clear_params"
)
