package feel

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry holds the built-in functions visible beneath every environment.
// Register functions before evaluation starts; lookups are safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	funcs   map[string]*Function
	known   *nameSet
	version uint64
	clock   func() time.Time
}

// NewRegistry returns a registry populated with the standard built-ins.
func NewRegistry() *Registry {
	r := &Registry{
		funcs: map[string]*Function{},
		known: newNameSet(fixedNames...),
		clock: time.Now,
	}
	registerConversionBuiltins(r)
	registerBooleanBuiltins(r)
	registerStringBuiltins(r)
	registerNumericBuiltins(r)
	registerListBuiltins(r)
	registerContextBuiltins(r)
	registerTemporalBuiltins(r)
	registerRangeBuiltins(r)
	return r
}

// SetClock replaces the clock read by now() and today().
func (r *Registry) SetClock(clock func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

func (r *Registry) now() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clock()
}

// Register adds or replaces a function. Multi-word names become parseable
// as a single name.
func (r *Registry) Register(fn *Function) error {
	if fn == nil || fn.Impl == nil {
		return fmt.Errorf("function must have an implementation")
	}
	name := strings.Join(strings.Fields(fn.Name), " ")
	if name == "" {
		return fmt.Errorf("function name is required")
	}
	if IsKeyword(name) {
		return fmt.Errorf("function name %q is a reserved keyword", name)
	}
	if fn.Required > len(fn.Params) && !fn.Variadic {
		return fmt.Errorf("function %q requires more arguments than it declares", name)
	}
	fn.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
	if strings.Contains(name, " ") {
		known := r.known.clone()
		known.add(name)
		r.known = known
	}
	r.version++
	return nil
}

// RegisterExpression registers a function written in the expression
// language, such as "function(a, b) a + b".
func (r *Registry) RegisterExpression(name, src string) error {
	node, err := parse(src, EntryExpression, r.names())
	if err != nil {
		return fmt.Errorf("parse function %q: %w", name, err)
	}
	lit, ok := node.(*FunctionLit)
	if !ok {
		return fmt.Errorf("function %q: expression is not a function literal", name)
	}
	ev := &evaluator{reg: r}
	fn := ev.closure(lit, nil)
	fn.Name = name
	return r.Register(fn)
}

// define registers a built-in; it panics on invalid definitions since the
// set of built-ins is fixed at compile time.
func (r *Registry) define(name string, params []string, required int, impl BuiltinFunc) {
	if err := r.Register(&Function{Name: name, Params: params, Required: required, Impl: impl}); err != nil {
		panic(err)
	}
}

func (r *Registry) defineVariadic(name string, required int, impl BuiltinFunc) {
	if err := r.Register(&Function{Name: name, Params: []string{"list"}, Required: required, Variadic: true, Impl: impl}); err != nil {
		panic(err)
	}
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (*Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Version changes whenever a function is registered.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *Registry) names() *nameSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.known
}
