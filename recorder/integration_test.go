//go:build integration
// +build integration

package recorder_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/dmn/feel"
	"github.com/liamcoop/dmn/recorder"
	"github.com/liamcoop/dmn/rules"
)

// setupPostgres starts a PostgreSQL container with the results schema and
// returns a recorder connected to it
func setupPostgres(t *testing.T) *recorder.SQLRecorder {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "dmn_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}
	connStr := fmt.Sprintf("postgres://test:test@%s:%s/dmn_test?sslmode=disable", host, port.Port())

	var rec *recorder.SQLRecorder
	for i := 0; i < 30; i++ {
		rec, err = recorder.OpenPostgres(ctx, connStr)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() { rec.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "migrations", "000001_evaluation_results.up.sql"))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := rec.DB().Exec(string(schema)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return rec
}

func TestPostgresRecorder_RecordGetPrune(t *testing.T) {
	rec := setupPostgres(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	ids := make([]string, 3)
	for i := range ids {
		ids[i] = uuid.NewString()
		err := rec.Record(ctx, &rules.EvaluationResult{
			ID:          ids[i],
			ModelID:     "shop",
			Decision:    "discount",
			Input:       map[string]any{"tier": "gold"},
			Output:      feel.NewNumber(int64(i)),
			Duration:    time.Millisecond,
			EvaluatedAt: base.AddDate(0, 0, i*10),
		})
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got, err := rec.Get(ctx, ids[1])
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Output != 1.0 || got.Input["tier"] != "gold" || got.Duration != time.Millisecond {
		t.Errorf("unexpected stored result: %+v", got)
	}
	if !got.EvaluatedAt.Equal(base.AddDate(0, 0, 10)) {
		t.Errorf("expected evaluatedAt %v, got %v", base.AddDate(0, 0, 10), got.EvaluatedAt)
	}

	recent, err := rec.Recent(ctx, "shop", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 3 || recent[0].ID != ids[2] {
		t.Errorf("expected newest first, got %d results", len(recent))
	}

	deleted, err := rec.Prune(ctx, base.AddDate(0, 0, 15))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 pruned results, got %d", deleted)
	}
}

func TestPostgresRecorder_WithEngine(t *testing.T) {
	rec := setupPostgres(t)
	ctx := context.Background()

	engine, err := rules.NewEngine(rules.NewInMemoryModelStore(), rules.WithRecorder(rec))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	err = engine.AddModel(&rules.DecisionModel{
		ID: "greeting",
		Decisions: map[string]*rules.Decision{
			"greeting": {Expression: `"Hello " + name`},
		},
	})
	if err != nil {
		t.Fatalf("AddModel failed: %v", err)
	}

	res, err := engine.Evaluate(ctx, "greeting", "greeting", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	stored, err := rec.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Output != "Hello Ada" {
		t.Errorf("expected stored output Hello Ada, got %v", stored.Output)
	}
}
