package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"github.com/liamcoop/dmn/feel"
)

// Metrics receives evaluation measurements from an Engine
type Metrics interface {
	ObserveDecision(modelID, decision string, elapsed time.Duration, err error)
	ObserveHitPolicyViolation(modelID, decision string, policy HitPolicy)
}

// ResultRecorder stores evaluation results, typically as an audit trail
type ResultRecorder interface {
	Record(ctx context.Context, result *EvaluationResult) error
}

// Engine holds validated decision models and evaluates their decisions.
// Every expression of a model is parsed when the model is added, so syntax
// errors are reported before the model becomes visible to Evaluate.
// Concurrent evaluations share the interpreter and its parse cache.
type Engine struct {
	interp   *feel.Interpreter
	cel      *CELEvaluator
	store    ModelStore
	models   map[string]*DecisionModel // modelID -> compiled model
	metrics  Metrics
	recorder ResultRecorder
	log      *slog.Logger
	mu       sync.RWMutex
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithInterpreter uses interp instead of an interpreter with the standard
// built-ins. Tenants use this to carry their own function registry.
func WithInterpreter(interp *feel.Interpreter) EngineOption {
	return func(en *Engine) { en.interp = interp }
}

func WithMetrics(m Metrics) EngineOption {
	return func(en *Engine) { en.metrics = m }
}

func WithRecorder(r ResultRecorder) EngineOption {
	return func(en *Engine) { en.recorder = r }
}

func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(en *Engine) { en.log = l }
}

// NewEngine creates an engine over store and compiles every model already
// in it
func NewEngine(store ModelStore, opts ...EngineOption) (*Engine, error) {
	en := &Engine{
		cel:    NewCELEvaluator(),
		store:  store,
		models: make(map[string]*DecisionModel),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(en)
	}
	if en.interp == nil {
		en.interp = feel.NewInterpreter()
	}

	if err := en.CompileAllModels(); err != nil {
		return nil, fmt.Errorf("failed to compile models: %w", err)
	}
	return en, nil
}

// Interpreter returns the interpreter used for FEEL expressions
func (en *Engine) Interpreter() *feel.Interpreter { return en.interp }

// CompileModel normalizes and validates m and parses every expression in
// it. The first syntax error is returned with the decision and cell it came
// from.
func (en *Engine) CompileModel(m *DecisionModel) error {
	if err := m.Normalize(); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	for _, name := range m.DecisionNames() {
		if err := en.compileDecision(m.Decisions[name]); err != nil {
			return fmt.Errorf("decision %q: %w", name, err)
		}
	}

	en.mu.Lock()
	en.models[m.ID] = m
	en.mu.Unlock()
	return nil
}

func (en *Engine) compileDecision(d *Decision) error {
	if t := d.Table; t != nil {
		for i, in := range t.Inputs {
			if _, err := en.interp.Parse(in.Expression, feel.EntryExpression); err != nil {
				return fmt.Errorf("input %d: %w", i+1, err)
			}
		}
		for j, out := range t.Outputs {
			for _, v := range out.OutputValues {
				if _, err := en.interp.Parse(v, feel.EntryExpression); err != nil {
					return fmt.Errorf("output %d value %q: %w", j+1, v, err)
				}
			}
		}
		for i, r := range t.Rules {
			for j, entry := range r.InputEntries {
				if isAnyEntry(entry) {
					continue
				}
				if _, err := en.interp.Parse(entry, feel.EntryUnaryTests); err != nil {
					return fmt.Errorf("rule %d input entry %d: %w", i+1, j+1, err)
				}
			}
			for j, entry := range r.OutputEntries {
				if strings.TrimSpace(entry) == "" {
					continue
				}
				if _, err := en.interp.Parse(entry, feel.EntryExpression); err != nil {
					return fmt.Errorf("rule %d output entry %d: %w", i+1, j+1, err)
				}
			}
		}
		return nil
	}

	if d.ExpressionLanguage == LanguageCEL {
		// variables are only known at evaluation time, so check syntax only
		env, err := cel.NewEnv()
		if err != nil {
			return fmt.Errorf("failed to create CEL environment: %w", err)
		}
		if _, issues := env.Parse(d.Expression); issues != nil && issues.Err() != nil {
			return fmt.Errorf("compile error: %w", issues.Err())
		}
		return nil
	}
	if _, err := en.interp.Parse(d.Expression, feel.EntryExpression); err != nil {
		return err
	}
	return nil
}

// CompileAllModels compiles every model from the store
func (en *Engine) CompileAllModels() error {
	models, err := en.store.List()
	if err != nil {
		return err
	}
	for _, m := range models {
		if err := en.CompileModel(m); err != nil {
			return fmt.Errorf("failed to compile model %s: %w", m.ID, err)
		}
	}
	return nil
}

// AddModel validates and compiles m, then adds it to the store. Nothing is
// kept when any step fails.
func (en *Engine) AddModel(m *DecisionModel) error {
	if _, err := en.store.Get(m.ID); err == nil {
		return fmt.Errorf("model with ID %s: %w", m.ID, ErrModelExists)
	}

	if err := en.CompileModel(m); err != nil {
		return fmt.Errorf("model validation failed: %w", err)
	}

	if err := en.store.Add(m); err != nil {
		en.mu.Lock()
		delete(en.models, m.ID)
		en.mu.Unlock()
		return err
	}
	return nil
}

// UpdateModel replaces an existing model after compiling the new version.
// The old version stays active when compilation fails.
func (en *Engine) UpdateModel(m *DecisionModel) error {
	if _, err := en.store.Get(m.ID); err != nil {
		return err
	}

	en.mu.RLock()
	previous := en.models[m.ID]
	en.mu.RUnlock()

	if err := en.CompileModel(m); err != nil {
		return fmt.Errorf("model validation failed: %w", err)
	}

	if err := en.store.Update(m); err != nil {
		en.mu.Lock()
		en.models[m.ID] = previous
		en.mu.Unlock()
		return err
	}
	return nil
}

// PutModel adds m or replaces the model with the same ID
func (en *Engine) PutModel(m *DecisionModel) error {
	if _, err := en.store.Get(m.ID); err == nil {
		return en.UpdateModel(m)
	}
	return en.AddModel(m)
}

// DeleteModel removes a model from the store and the compiled set
func (en *Engine) DeleteModel(id string) error {
	if err := en.store.Delete(id); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.models, id)
	en.mu.Unlock()
	return nil
}

// GetModel returns a compiled model
func (en *Engine) GetModel(id string) (*DecisionModel, error) {
	en.mu.RLock()
	m, ok := en.models[id]
	en.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("model with ID %s: %w", id, ErrModelNotFound)
	}
	return m, nil
}

// ListModels returns the stored models ordered by ID
func (en *Engine) ListModels() ([]*DecisionModel, error) {
	return en.store.List()
}

// Evaluate evaluates one decision of a model against facts. Evaluation
// failures are returned both as the error and in the result.
func (en *Engine) Evaluate(ctx context.Context, modelID, decision string, facts map[string]any) (*EvaluationResult, error) {
	m, err := en.GetModel(modelID)
	if err != nil {
		return nil, err
	}

	input, err := factsContext(facts)
	if err != nil {
		return nil, err
	}

	result := &EvaluationResult{
		ID:          uuid.NewString(),
		ModelID:     modelID,
		Decision:    decision,
		Input:       facts,
		EvaluatedAt: time.Now().UTC(),
	}

	start := time.Now()
	out, err := EvaluateDecision(en.interp, decision, m, input,
		WithCEL(en.cel),
		WithDecisionObserver(en.observer(modelID)),
	)
	result.Duration = time.Since(start)
	if err != nil {
		result.Output = feel.Null
		result.Error = err
		en.log.Warn("decision evaluation failed",
			"model_id", modelID,
			"decision", decision,
			"error", err,
		)
	} else {
		result.Output = out
	}

	if en.recorder != nil {
		if rerr := en.recorder.Record(ctx, result); rerr != nil {
			en.log.Error("failed to record evaluation result",
				"model_id", modelID,
				"decision", decision,
				"result_id", result.ID,
				"error", rerr,
			)
		}
	}

	return result, err
}

// EvaluateAll evaluates every decision of a model, continuing past
// failures. Each result carries its own error.
func (en *Engine) EvaluateAll(ctx context.Context, modelID string, facts map[string]any) ([]*EvaluationResult, error) {
	m, err := en.GetModel(modelID)
	if err != nil {
		return nil, err
	}

	names := m.DecisionNames()
	results := make([]*EvaluationResult, 0, len(names))
	for _, name := range names {
		res, err := en.Evaluate(ctx, modelID, name, facts)
		if res == nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (en *Engine) observer(modelID string) DecisionObserver {
	if en.metrics == nil {
		return nil
	}
	return func(decision string, elapsed time.Duration, err error) {
		en.metrics.ObserveDecision(modelID, decision, elapsed, err)
		var hp *HitPolicyViolation
		if errors.As(err, &hp) {
			en.metrics.ObserveHitPolicyViolation(modelID, decision, hp.Policy)
		}
	}
}

func factsContext(facts map[string]any) (*feel.Context, error) {
	if facts == nil {
		return feel.NewContext(), nil
	}
	v, err := feel.FromGo(facts)
	if err != nil {
		return nil, fmt.Errorf("invalid facts: %w", err)
	}
	c, ok := v.(*feel.Context)
	if !ok {
		return nil, fmt.Errorf("invalid facts: expected a record, got %s", v.Kind())
	}
	return c, nil
}
