// Package recorder keeps an audit trail of decision evaluations.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/liamcoop/dmn/config"
	"github.com/liamcoop/dmn/rules"
)

// Recorder stores evaluation results and removes old ones
type Recorder interface {
	rules.ResultRecorder

	// Prune deletes results evaluated before cutoff and reports how many
	// were removed
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// Observer is told about every Record call. *metrics.Collector satisfies it.
type Observer interface {
	ObserveRecord(err error)
}

// StoredResult is an evaluation result read back from storage
type StoredResult struct {
	ID          string         `json:"id"`
	ModelID     string         `json:"modelId"`
	Decision    string         `json:"decision"`
	Input       map[string]any `json:"input,omitempty"`
	Output      any            `json:"output"`
	Error       string         `json:"error,omitempty"`
	Duration    time.Duration  `json:"duration"`
	EvaluatedAt time.Time      `json:"evaluatedAt"`
}

// Open creates the recorder selected by cfg.Backend
func Open(ctx context.Context, cfg config.RecorderConfig, settings config.Settings, logger *slog.Logger) (Recorder, error) {
	switch cfg.Backend {
	case "", "log":
		return NewLogRecorder(logger, settings.LogResult), nil
	case "postgres":
		return OpenPostgres(ctx, cfg.DatabaseURL)
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath)
	case "none":
		return nopRecorder{}, nil
	}
	return nil, fmt.Errorf("unknown recorder backend %q", cfg.Backend)
}

type instrumented struct {
	Recorder
	obs Observer
}

// Instrument reports every Record call of r to obs
func Instrument(r Recorder, obs Observer) Recorder {
	if obs == nil {
		return r
	}
	return &instrumented{Recorder: r, obs: obs}
}

func (i *instrumented) Record(ctx context.Context, res *rules.EvaluationResult) error {
	err := i.Recorder.Record(ctx, res)
	i.obs.ObserveRecord(err)
	return err
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, *rules.EvaluationResult) error { return nil }

func (nopRecorder) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

func (nopRecorder) Close() error { return nil }
