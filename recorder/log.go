package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/liamcoop/dmn/feel"
	"github.com/liamcoop/dmn/rules"
)

// LogRecorder writes one structured log event per evaluation. Decision
// outputs are only included when logResult is set.
type LogRecorder struct {
	logger    *slog.Logger
	logResult bool
}

// NewLogRecorder creates a recorder writing to logger, or slog.Default
// when logger is nil
func NewLogRecorder(logger *slog.Logger, logResult bool) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{
		logger:    logger.With("component", "recorder.log"),
		logResult: logResult,
	}
}

func (r *LogRecorder) Record(ctx context.Context, res *rules.EvaluationResult) error {
	attrs := []slog.Attr{
		slog.String("result_id", res.ID),
		slog.String("model_id", res.ModelID),
		slog.String("decision", res.Decision),
		slog.Float64("duration_ms", float64(res.Duration.Microseconds())/1000),
	}
	if r.logResult && res.Output != nil {
		attrs = append(attrs, slog.Any("output", feel.ToGo(res.Output)))
	}
	if res.Error != nil {
		attrs = append(attrs, slog.String("error", res.Error.Error()))
		r.logger.LogAttrs(ctx, slog.LevelWarn, "decision evaluation failed", attrs...)
		return nil
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "decision evaluated", attrs...)
	return nil
}

// Prune is a no-op; log retention belongs to the log pipeline
func (r *LogRecorder) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

func (r *LogRecorder) Close() error { return nil }
