package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/liamcoop/dmn/feel"
	"github.com/liamcoop/dmn/rules"
)

// Dialect describes the SQL flavour a SQLRecorder talks to
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

var placeholder = regexp.MustCompile(`\$\d+`)

// rebind rewrites $n placeholders for drivers that only accept ?
func (d Dialect) rebind(query string) string {
	if d == SQLite {
		return placeholder.ReplaceAllString(query, "?")
	}
	return query
}

// SQLRecorder stores evaluation results in the evaluation_results table.
// The PostgreSQL schema is managed by migrations; the SQLite schema is
// created on open.
type SQLRecorder struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// NewSQLRecorder wraps an open database
func NewSQLRecorder(db *sql.DB, dialect Dialect) *SQLRecorder {
	return &SQLRecorder{
		db:      db,
		dialect: dialect,
		logger:  slog.Default().With("component", "recorder.sql", "dialect", string(dialect)),
	}
}

// OpenPostgres connects to databaseURL and checks the connection
func OpenPostgres(ctx context.Context, databaseURL string) (*SQLRecorder, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewSQLRecorder(db, Postgres), nil
}

// OpenSQLite opens or creates the database file at path and creates the
// results table
func OpenSQLite(ctx context.Context, path string) (*SQLRecorder, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %q: %w", path, err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	r := NewSQLRecorder(db, SQLite)
	r.logger.Info("sqlite recorder initialized", "path", path)
	return r, nil
}

// DB returns the underlying database handle
func (r *SQLRecorder) DB() *sql.DB { return r.db }

// Record inserts res. A result without an ID gets a new UUID.
func (r *SQLRecorder) Record(ctx context.Context, res *rules.EvaluationResult) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	input, err := json.Marshal(res.Input)
	if err != nil {
		return fmt.Errorf("failed to encode input: %w", err)
	}
	output, err := json.Marshal(feel.ToGo(res.Output))
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	var errText sql.NullString
	if res.Error != nil {
		errText = sql.NullString{String: res.Error.Error(), Valid: true}
	}
	evaluatedAt := res.EvaluatedAt
	if evaluatedAt.IsZero() {
		evaluatedAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx, r.dialect.rebind(`
		INSERT INTO evaluation_results (id, model_id, decision, input, output, error, duration_us, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`), res.ID, res.ModelID, res.Decision, string(input), string(output), errText,
		res.Duration.Microseconds(), evaluatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert evaluation result: %w", err)
	}
	return nil
}

// Get returns one stored result
func (r *SQLRecorder) Get(ctx context.Context, id string) (*StoredResult, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.rebind(`
		SELECT id, model_id, decision, input, output, error, duration_us, evaluated_at
		FROM evaluation_results
		WHERE id = $1
	`), id)
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evaluation result %s not found", id)
	}
	return res, err
}

// Recent returns up to limit results for a model, newest first
func (r *SQLRecorder) Recent(ctx context.Context, modelID string, limit int) ([]*StoredResult, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(`
		SELECT id, model_id, decision, input, output, error, duration_us, evaluated_at
		FROM evaluation_results
		WHERE model_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`), modelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluation results: %w", err)
	}
	defer rows.Close()

	var results []*StoredResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evaluation results: %w", err)
	}
	return results, nil
}

// Prune deletes results evaluated before cutoff
func (r *SQLRecorder) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.dialect.rebind(`
		DELETE FROM evaluation_results WHERE evaluated_at < $1
	`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune evaluation results: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLRecorder) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(s scanner) (*StoredResult, error) {
	var (
		res        StoredResult
		input      []byte
		output     []byte
		errText    sql.NullString
		durationUS int64
	)
	if err := s.Scan(&res.ID, &res.ModelID, &res.Decision, &input, &output, &errText, &durationUS, &res.EvaluatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan evaluation result: %w", err)
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &res.Input); err != nil {
			return nil, fmt.Errorf("failed to decode input of %s: %w", res.ID, err)
		}
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &res.Output); err != nil {
			return nil, fmt.Errorf("failed to decode output of %s: %w", res.ID, err)
		}
	}
	res.Error = errText.String
	res.Duration = time.Duration(durationUS) * time.Microsecond
	return &res, nil
}
