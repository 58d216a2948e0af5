package feel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/liamcoop/dmn/internal/logger"
)

// Interpreter parses and evaluates expressions. It is safe for concurrent
// use once its registry has been populated.
type Interpreter struct {
	reg        *Registry
	cache      ExprCache
	log        *slog.Logger
	traceParse bool
	traceEval  bool
	onCache    func(hit bool)
	ev         *evaluator
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithRegistry uses reg instead of a fresh registry of built-ins.
func WithRegistry(reg *Registry) Option {
	return func(in *Interpreter) { in.reg = reg }
}

// WithClock sets the clock read by now() and today().
func WithClock(clock func() time.Time) Option {
	return func(in *Interpreter) { in.reg.SetClock(clock) }
}

// WithCache replaces the parse cache.
func WithCache(c ExprCache) Option {
	return func(in *Interpreter) { in.cache = c }
}

// WithLogger sets the logger used for trace output.
func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) { in.log = l }
}

// WithTracing enables TRACE level events for parsing and evaluation.
func WithTracing(parse, eval bool) Option {
	return func(in *Interpreter) {
		in.traceParse = parse
		in.traceEval = eval
	}
}

// WithCacheObserver is called on every parse cache lookup.
func WithCacheObserver(fn func(hit bool)) Option {
	return func(in *Interpreter) { in.onCache = fn }
}

// NewInterpreter creates an interpreter with the standard built-ins.
func NewInterpreter(opts ...Option) *Interpreter {
	in := &Interpreter{
		reg:   NewRegistry(),
		cache: NewInMemoryExprCache(DefaultCacheConfig()),
		log:   slog.Default(),
	}
	// the registry must exist before options such as WithClock run
	for _, opt := range opts {
		if opt != nil {
			opt(in)
		}
	}
	in.ev = &evaluator{reg: in.reg}
	return in
}

// Registry returns the interpreter's function registry.
func (in *Interpreter) Registry() *Registry { return in.reg }

// Parse parses src with the given grammar entry, reusing a cached tree when
// the same text was parsed before.
func (in *Interpreter) Parse(src string, entry Entry) (Node, error) {
	key := fmt.Sprintf("%d:%d:%s", entry, in.reg.Version(), src)
	if n, ok := in.cache.Get(key); ok {
		in.observeCache(true)
		return n, nil
	}
	in.observeCache(false)

	n, err := parse(src, entry, in.reg.names())
	if in.traceParse {
		in.log.Log(context.Background(), logger.LevelTrace, "feel parse",
			"source", src,
			"entry", entry.String(),
			"error", err,
		)
	}
	if err != nil {
		return nil, err
	}
	in.cache.Set(key, n)
	return n, nil
}

func (in *Interpreter) observeCache(hit bool) {
	if in.onCache != nil {
		in.onCache(hit)
	}
}

// Evaluate evaluates a parsed tree. A nil env is an empty scope.
func (in *Interpreter) Evaluate(n Node, env *Env) (Value, error) {
	if env == nil {
		env = NewEnv(nil)
	}
	v, err := in.ev.eval(n, env)
	if in.traceEval {
		attrs := []any{"node", fmt.Sprintf("%T", n), "position", n.Pos().String()}
		if err != nil {
			attrs = append(attrs, "error", err)
		} else {
			attrs = append(attrs, "result", v.String())
		}
		in.log.Log(context.Background(), logger.LevelTrace, "feel evaluate", attrs...)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// EvaluateExpression parses and evaluates src.
func (in *Interpreter) EvaluateExpression(src string, env *Env) (Value, error) {
	n, err := in.Parse(src, EntryExpression)
	if err != nil {
		return nil, err
	}
	return in.Evaluate(n, env)
}

// MatchesUnaryTests reports whether candidate satisfies a tree parsed with
// EntryUnaryTests.
func (in *Interpreter) MatchesUnaryTests(tests Node, candidate Value, env *Env) (bool, error) {
	ut, ok := tests.(*UnaryTests)
	if !ok {
		return false, fmt.Errorf("expected unary tests, got %T", tests)
	}
	if env == nil {
		env = NewEnv(nil)
	}
	matched, err := in.ev.matchTests(ut, candidate, env)
	if in.traceEval {
		in.log.Log(context.Background(), logger.LevelTrace, "feel unary tests",
			"position", ut.Pos().String(),
			"candidate", orNull(candidate).String(),
			"matched", matched,
		)
	}
	return matched, err
}

// MatchesUnaryTestsString parses src as unary tests and matches candidate.
func (in *Interpreter) MatchesUnaryTestsString(src string, candidate Value, env *Env) (bool, error) {
	n, err := in.Parse(src, EntryUnaryTests)
	if err != nil {
		return false, err
	}
	return in.MatchesUnaryTests(n, candidate, env)
}
