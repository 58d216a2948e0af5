package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/liamcoop/dmn/feel"
)

// celCostLimit bounds the work a single CEL expression may perform
const celCostLimit = 1000000

var celIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var celReserved = map[string]bool{
	"as": true, "break": true, "const": true, "continue": true, "else": true,
	"for": true, "function": true, "if": true, "import": true, "let": true,
	"loop": true, "package": true, "namespace": true, "return": true,
	"var": true, "void": true, "while": true, "in": true,
	"true": true, "false": true, "null": true,
}

// CELEvaluator evaluates literal decision expressions written in CEL. Every
// name visible in the FEEL environment that is a valid CEL identifier is
// declared as a dynamic variable. Compiled programs are cached per
// expression and set of declared names.
type CELEvaluator struct {
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELEvaluator creates an evaluator with an empty program cache
func NewCELEvaluator() *CELEvaluator {
	return &CELEvaluator{programs: make(map[string]cel.Program)}
}

// Compile type-checks expression against the given variable names
func (c *CELEvaluator) Compile(expression string, names []string) (cel.Program, error) {
	names = celNames(names)
	key := strings.Join(names, ",") + "\x00" + expression

	c.mu.RLock()
	prog, ok := c.programs[key]
	c.mu.RUnlock()
	if ok {
		return prog, nil
	}

	opts := make([]cel.EnvOption, 0, len(names))
	for _, n := range names {
		opts = append(opts, cel.Variable(n, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prog, err = env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(celCostLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	c.mu.Lock()
	c.programs[key] = prog
	c.mu.Unlock()
	return prog, nil
}

// Evaluate runs expression with the names visible in env as variables and
// converts the result back into a FEEL value
func (c *CELEvaluator) Evaluate(expression string, env *feel.Env) (feel.Value, error) {
	names := celNames(env.Names())
	prog, err := c.Compile(expression, names)
	if err != nil {
		return nil, err
	}
	activation := make(map[string]any, len(names))
	for _, n := range names {
		v, _ := env.Lookup(n)
		activation[n] = feel.ToGo(v)
	}
	out, _, err := prog.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("cel evaluation error: %w", err)
	}
	return fromCEL(out)
}

func celNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] || celReserved[n] || !celIdent.MatchString(n) {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func fromCEL(v ref.Val) (feel.Value, error) {
	if types.IsError(v) {
		return nil, fmt.Errorf("cel evaluation error: %v", v)
	}
	if v.Type() == types.NullType {
		return feel.Null, nil
	}
	switch x := v.(type) {
	case traits.Mapper:
		b := feel.NewContextBuilder()
		var keys []string
		vals := map[string]ref.Val{}
		it := x.Iterator()
		for it.HasNext() == types.True {
			k := it.Next()
			ks, ok := k.Value().(string)
			if !ok {
				ks = fmt.Sprint(k.Value())
			}
			keys = append(keys, ks)
			vals[ks] = x.Get(k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fv, err := fromCEL(vals[k])
			if err != nil {
				return nil, err
			}
			b.Set(k, fv)
		}
		return b.Build(), nil
	case traits.Lister:
		var items []feel.Value
		it := x.Iterator()
		for it.HasNext() == types.True {
			fv, err := fromCEL(it.Next())
			if err != nil {
				return nil, err
			}
			items = append(items, fv)
		}
		return feel.NewList(items...), nil
	}
	return feel.FromGo(v.Value())
}
