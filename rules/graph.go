package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liamcoop/dmn/feel"
)

type visitState int

const (
	unresolved visitState = iota
	resolving
	resolved
)

// DecisionObserver is told about every decision evaluated during a call,
// required decisions included
type DecisionObserver func(decision string, elapsed time.Duration, err error)

// ResolveOption configures EvaluateDecision
type ResolveOption func(*resolver)

// WithCEL evaluates decisions whose expression language is cel
func WithCEL(c *CELEvaluator) ResolveOption {
	return func(r *resolver) { r.cel = c }
}

// WithDecisionObserver registers fn for per-decision timing
func WithDecisionObserver(fn DecisionObserver) ResolveOption {
	return func(r *resolver) { r.observe = fn }
}

type resolver struct {
	interp  *feel.Interpreter
	model   *DecisionModel
	base    *feel.Env
	cel     *CELEvaluator
	observe DecisionObserver
	states  map[string]visitState
	results map[string]feel.Value
	path    []string
}

// EvaluateDecision evaluates the named decision of model against ctx.
// Required decisions are evaluated first, depth first in declaration order,
// each at most once per call. Each decision sees the results of the
// decisions resolved before it, bound under their names on top of ctx.
func EvaluateDecision(interp *feel.Interpreter, name string, model *DecisionModel, ctx *feel.Context, opts ...ResolveOption) (feel.Value, error) {
	r := &resolver{
		interp:  interp,
		model:   model,
		base:    feel.EnvFromContext(ctx),
		states:  make(map[string]visitState),
		results: make(map[string]feel.Value),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r.resolve(name, "")
}

func (r *resolver) resolve(name, requiredBy string) (feel.Value, error) {
	d, ok := r.model.Decisions[name]
	if !ok {
		return nil, &UnknownDecisionError{Name: name, RequiredBy: requiredBy}
	}
	switch r.states[name] {
	case resolved:
		return r.results[name], nil
	case resolving:
		return nil, newGraphError(r.path, name)
	}

	r.states[name] = resolving
	r.path = append(r.path, name)

	for _, req := range d.RequiredDecisions {
		if _, err := r.resolve(req, name); err != nil {
			return nil, err
		}
	}

	// every decision resolved so far in this call is visible, so a sibling
	// declared later can read an earlier one
	start := time.Now()
	v, err := r.evaluate(name, d, r.base.Child(r.results))
	if r.observe != nil {
		r.observe(name, time.Since(start), err)
	}
	if err != nil {
		return nil, wrapDecisionError(name, err)
	}

	r.path = r.path[:len(r.path)-1]
	r.states[name] = resolved
	r.results[name] = v
	return v, nil
}

func (r *resolver) evaluate(name string, d *Decision, env *feel.Env) (feel.Value, error) {
	if t := d.Table; t != nil {
		if t.Name == "" {
			// models that skipped Normalize still report the decision name
			named := *t
			named.Name = name
			t = &named
		}
		return EvaluateTable(r.interp, t, env)
	}
	if strings.TrimSpace(d.Expression) == "" {
		return nil, fmt.Errorf("decision %q has neither a table nor an expression", name)
	}
	if strings.EqualFold(d.ExpressionLanguage, LanguageCEL) {
		if r.cel == nil {
			return nil, fmt.Errorf("decision %q uses cel but no CEL evaluator is configured", name)
		}
		return r.cel.Evaluate(d.Expression, env)
	}
	return r.interp.EvaluateExpression(d.Expression, env)
}

// wrapDecisionError leaves the typed resolution errors untouched so callers
// see the innermost failure
func wrapDecisionError(name string, err error) error {
	var (
		hp *HitPolicyViolation
		ue *UnknownDecisionError
		ge *GraphError
		de *DecisionError
	)
	if errors.As(err, &hp) || errors.As(err, &ue) || errors.As(err, &ge) || errors.As(err, &de) {
		return err
	}
	return &DecisionError{Decision: name, Err: err}
}
