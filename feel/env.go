package feel

// Env is an immutable, layered variable scope. Child layers shadow their
// parents; built-in functions resolve through the interpreter's registry
// beneath every layer.
type Env struct {
	parent *Env
	vars   map[string]Value
}

// NewEnv creates a root scope from bindings. The map is copied.
func NewEnv(bindings map[string]Value) *Env {
	return (*Env)(nil).Child(bindings)
}

// EnvFromContext creates a root scope from the entries of a context.
func EnvFromContext(c *Context) *Env {
	if c == nil {
		return NewEnv(nil)
	}
	return NewEnv(c.vals)
}

// Child returns a new layer on top of e.
func (e *Env) Child(bindings map[string]Value) *Env {
	vars := make(map[string]Value, len(bindings))
	for k, v := range bindings {
		if v == nil {
			v = Null
		}
		vars[k] = v
	}
	return &Env{parent: e, vars: vars}
}

// Bind returns a new layer with a single binding.
func (e *Env) Bind(name string, v Value) *Env {
	if v == nil {
		v = Null
	}
	return &Env{parent: e, vars: map[string]Value{name: v}}
}

// Lookup resolves name from the innermost layer outwards.
func (e *Env) Lookup(name string) (Value, bool) {
	for s := e; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Names returns every visible name, inner layers first.
func (e *Env) Names() []string {
	seen := map[string]bool{}
	var names []string
	for s := e; s != nil; s = s.parent {
		for k := range s.vars {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	return names
}

// candidateName binds `?` while evaluating unary tests.
const candidateName = "?"
