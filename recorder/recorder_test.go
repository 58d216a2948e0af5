package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/liamcoop/dmn/config"
	"github.com/liamcoop/dmn/feel"
	"github.com/liamcoop/dmn/rules"
)

type countingObserver struct {
	ok, failed int
}

func (o *countingObserver) ObserveRecord(err error) {
	if err != nil {
		o.failed++
		return
	}
	o.ok++
}

type failingRecorder struct{ nopRecorder }

func (failingRecorder) Record(context.Context, *rules.EvaluationResult) error {
	return errors.New("disk full")
}

// TestLogRecorder verifies the output is only logged when enabled
func TestLogRecorder(t *testing.T) {
	tests := []struct {
		name       string
		logResult  bool
		err        error
		wantOutput bool
		wantLevel  string
	}{
		{"without result", false, nil, false, "INFO"},
		{"with result", true, nil, true, "INFO"},
		{"failed evaluation", true, errors.New("boom"), true, "WARN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			r := NewLogRecorder(logger, tt.logResult)

			res := sampleResult("r1", time.Now())
			res.Error = tt.err
			if err := r.Record(context.Background(), res); err != nil {
				t.Fatalf("Record failed: %v", err)
			}

			var event map[string]any
			if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
				t.Fatalf("invalid log line %q: %v", buf.String(), err)
			}
			if event["level"] != tt.wantLevel {
				t.Errorf("expected level %s, got %v", tt.wantLevel, event["level"])
			}
			if event["result_id"] != "r1" || event["model_id"] != "shop" {
				t.Errorf("missing identifiers in %v", event)
			}
			if _, ok := event["output"]; ok != tt.wantOutput {
				t.Errorf("output logged = %v, want %v", ok, tt.wantOutput)
			}
		})
	}
}

// TestInstrument verifies the observer sees every Record outcome
func TestInstrument(t *testing.T) {
	obs := &countingObserver{}
	ctx := context.Background()
	res := sampleResult("r1", time.Now())

	_ = Instrument(nopRecorder{}, obs).Record(ctx, res)
	_ = Instrument(failingRecorder{}, obs).Record(ctx, res)

	if obs.ok != 1 || obs.failed != 1 {
		t.Errorf("expected 1 ok and 1 failed, got %+v", obs)
	}
	if r := Instrument(nopRecorder{}, nil); r != (nopRecorder{}) {
		t.Errorf("expected the recorder unchanged without an observer")
	}
}

// TestOpen verifies backend selection
func TestOpen(t *testing.T) {
	ctx := context.Background()
	settings := config.Settings{LogResult: true}

	r, err := Open(ctx, config.RecorderConfig{Backend: "log"}, settings, nil)
	if err != nil {
		t.Fatalf("Open(log) failed: %v", err)
	}
	if lr, ok := r.(*LogRecorder); !ok || !lr.logResult {
		t.Errorf("expected a LogRecorder honouring LogResult, got %T", r)
	}

	r, err = Open(ctx, config.RecorderConfig{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "r.db")}, settings, nil)
	if err != nil {
		t.Fatalf("Open(sqlite) failed: %v", err)
	}
	defer r.Close()
	if _, ok := r.(*SQLRecorder); !ok {
		t.Errorf("expected a SQLRecorder, got %T", r)
	}

	if _, err := Open(ctx, config.RecorderConfig{Backend: "kafka"}, settings, nil); err == nil || !strings.Contains(err.Error(), "kafka") {
		t.Errorf("expected an unknown backend error, got %v", err)
	}
}

// TestStoredResultJSON checks the wire names used by the HTTP API
func TestStoredResultJSON(t *testing.T) {
	data, err := json.Marshal(StoredResult{ID: "x", ModelID: "m", Output: feel.ToGo(feel.NewNumber(1))})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"modelId":"m"`) || !strings.Contains(string(data), `"output":1`) {
		t.Errorf("unexpected JSON: %s", data)
	}
}
