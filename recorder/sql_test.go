package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/liamcoop/dmn/feel"
	"github.com/liamcoop/dmn/rules"
)

func openTestSQLite(t *testing.T) *SQLRecorder {
	t.Helper()
	r, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func sampleResult(id string, at time.Time) *rules.EvaluationResult {
	return &rules.EvaluationResult{
		ID:       id,
		ModelID:  "shop",
		Decision: "discount",
		Input:    map[string]any{"order": map[string]any{"total": 150.0}},
		Output: feel.NewContextBuilder().
			Set("rate", feel.NewNumber(15)).
			Set("tier", feel.String("gold")).
			Build(),
		Duration:    1500 * time.Microsecond,
		EvaluatedAt: at,
	}
}

// TestSQLRecorder_RecordAndGet verifies a result round trips through SQLite
func TestSQLRecorder_RecordAndGet(t *testing.T) {
	r := openTestSQLite(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := r.Record(ctx, sampleResult("r1", at)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := r.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := &StoredResult{
		ID:          "r1",
		ModelID:     "shop",
		Decision:    "discount",
		Input:       map[string]any{"order": map[string]any{"total": 150.0}},
		Output:      map[string]any{"rate": 15.0, "tier": "gold"},
		Duration:    1500 * time.Microsecond,
		EvaluatedAt: at,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stored result mismatch (-want +got):\n%s", diff)
	}

	if _, err := r.Get(ctx, "missing"); err == nil {
		t.Error("expected an error for an unknown result")
	}
}

// TestSQLRecorder_RecordError verifies failed evaluations keep their error
// text and a generated ID
func TestSQLRecorder_RecordError(t *testing.T) {
	r := openTestSQLite(t)
	ctx := context.Background()

	res := sampleResult("", time.Now())
	res.Output = feel.Null
	res.Error = errors.New("hit policy violated")
	if err := r.Record(ctx, res); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if res.ID == "" {
		t.Fatal("expected Record to assign an ID")
	}

	got, err := r.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Error != "hit policy violated" || got.Output != nil {
		t.Errorf("unexpected stored result: %+v", got)
	}
}

// TestSQLRecorder_RecentAndPrune verifies ordering and the retention cutoff
func TestSQLRecorder_RecentAndPrune(t *testing.T) {
	r := openTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "middle", "new"} {
		if err := r.Record(ctx, sampleResult(id, base.AddDate(0, 0, i*10))); err != nil {
			t.Fatalf("Record(%s) failed: %v", id, err)
		}
	}
	other := sampleResult("other", base)
	other.ModelID = "other"
	if err := r.Record(ctx, other); err != nil {
		t.Fatalf("Record(other) failed: %v", err)
	}

	recent, err := r.Recent(ctx, "shop", 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	var ids []string
	for _, res := range recent {
		ids = append(ids, res.ID)
	}
	if diff := cmp.Diff([]string{"new", "middle"}, ids); diff != "" {
		t.Errorf("recent results mismatch (-want +got):\n%s", diff)
	}

	deleted, err := r.Prune(ctx, base.AddDate(0, 0, 15))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 pruned results, got %d", deleted)
	}
	recent, _ = r.Recent(ctx, "shop", 0)
	if len(recent) != 1 || recent[0].ID != "new" {
		t.Errorf("expected only the newest result to remain, got %d", len(recent))
	}
}

// TestDialectRebind verifies placeholder rewriting
func TestDialectRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = $1 AND b = $12`
	if got := SQLite.rebind(q); got != `SELECT * FROM t WHERE a = ? AND b = ?` {
		t.Errorf("unexpected sqlite query: %s", got)
	}
	if got := Postgres.rebind(q); got != q {
		t.Errorf("postgres query should be unchanged, got %s", got)
	}
}
