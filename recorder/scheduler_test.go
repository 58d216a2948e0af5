package recorder

import (
	"context"
	"sync"
	"testing"
	"time"
)

type pruneRecorder struct {
	nopRecorder
	mu      sync.Mutex
	cutoffs []time.Time
}

func (p *pruneRecorder) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 2, nil
}

// TestScheduler_Start covers valid, empty and invalid schedules
func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		retention   int
		wantRunning bool
		wantError   bool
	}{
		{"valid daily schedule", "0 3 * * *", 30, true, false},
		{"valid hourly schedule", "0 * * * *", 30, true, false},
		{"empty schedule", "", 30, false, false},
		{"no retention", "0 3 * * *", 0, false, false},
		{"invalid schedule", "invalid cron", 30, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(&pruneRecorder{}, tt.schedule, tt.retention)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := s.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if s.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", s.IsRunning(), tt.wantRunning)
			}
			if tt.wantRunning {
				next := s.NextRun()
				if next == nil || !next.After(time.Now()) {
					t.Errorf("expected a future NextRun, got %v", next)
				}
				s.Stop()
				if s.IsRunning() {
					t.Error("scheduler still running after Stop()")
				}
			}
		})
	}
}

// TestScheduler_RunOnce verifies the cutoff is now minus the retention
func TestScheduler_RunOnce(t *testing.T) {
	rec := &pruneRecorder{}
	s := NewScheduler(rec, "0 3 * * *", 7)
	now := time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	deleted, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}
	want := time.Date(2024, 3, 3, 3, 0, 0, 0, time.UTC)
	if len(rec.cutoffs) != 1 || !rec.cutoffs[0].Equal(want) {
		t.Errorf("expected cutoff %v, got %v", want, rec.cutoffs)
	}
}

// TestScheduler_StopsOnContextCancel verifies cancellation stops the runner
func TestScheduler_StopsOnContextCancel(t *testing.T) {
	s := NewScheduler(&pruneRecorder{}, "0 3 * * *", 30)
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.IsRunning() {
		t.Error("scheduler still running after context cancellation")
	}
}
