package recorder

// sqliteSchema mirrors migrations/000001_evaluation_results.up.sql
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS evaluation_results (
    id TEXT PRIMARY KEY,
    model_id TEXT NOT NULL,
    decision TEXT NOT NULL,
    input TEXT,
    output TEXT,
    error TEXT,
    duration_us INTEGER NOT NULL,
    evaluated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluation_results_model
    ON evaluation_results (model_id, evaluated_at);

CREATE INDEX IF NOT EXISTS idx_evaluation_results_evaluated_at
    ON evaluation_results (evaluated_at);
`
