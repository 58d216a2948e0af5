package feel

import (
	"errors"
	"fmt"
)

// evaluator walks syntax trees. It holds no per-call state and is safe for
// concurrent use.
type evaluator struct {
	reg *Registry
}

func (ev *evaluator) eval(n Node, env *Env) (Value, error) {
	switch x := n.(type) {
	case *Literal:
		return x.Value, nil
	case *NameRef:
		return ev.evalName(x, env), nil
	case *CandidateRef:
		if v, ok := env.Lookup(candidateName); ok {
			return v, nil
		}
		return Null, nil
	case *UnaryOp:
		v, err := ev.eval(x.X, env)
		if err != nil {
			return nil, err
		}
		return Negate(v), nil
	case *BinaryOp:
		return ev.evalBinary(x, env)
	case *Between:
		return ev.evalBetween(x, env)
	case *In:
		v, err := ev.eval(x.X, env)
		if err != nil {
			return nil, err
		}
		ok, err := ev.matchTests(x.Tests, v, env)
		if err != nil {
			return nil, err
		}
		return Boolean(ok), nil
	case *InstanceOf:
		v, err := ev.eval(x.X, env)
		if err != nil {
			return nil, err
		}
		return Boolean(instanceOf(v, x.Type)), nil
	case *Path:
		v, err := ev.eval(x.X, env)
		if err != nil {
			return nil, err
		}
		return pathValue(v, x.Name), nil
	case *Filter:
		return ev.evalFilter(x, env)
	case *ListLit:
		items := make([]Value, len(x.Items))
		for i, it := range x.Items {
			v, err := ev.eval(it, env)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return listOf(items), nil
	case *ContextLit:
		return ev.evalContext(x, env)
	case *RangeLit:
		start, err := ev.eval(x.Start, env)
		if err != nil {
			return nil, err
		}
		end, err := ev.eval(x.End, env)
		if err != nil {
			return nil, err
		}
		return &Range{Start: start, End: end, StartIncluded: x.StartIncluded, EndIncluded: x.EndIncluded}, nil
	case *Call:
		return ev.evalCall(x, env)
	case *If:
		c, err := ev.eval(x.Cond, env)
		if err != nil {
			return nil, err
		}
		if c == Boolean(true) {
			return ev.eval(x.Then, env)
		}
		return ev.eval(x.Else, env)
	case *For:
		var out []Value
		err := ev.iterate(x.Iterators, env, func(inner *Env) (bool, error) {
			v, err := ev.eval(x.Return, inner)
			if err != nil {
				return false, err
			}
			out = append(out, v)
			return true, nil
		})
		if err != nil {
			return nil, err
		}
		return listOf(out), nil
	case *Quantified:
		return ev.evalQuantified(x, env)
	case *FunctionLit:
		return ev.closure(x, env), nil
	case *UnaryTests:
		cand, _ := env.Lookup(candidateName)
		ok, err := ev.matchTests(x, cand, env)
		if err != nil {
			return nil, err
		}
		return Boolean(ok), nil
	}
	return nil, evalErrorf(n.Pos(), "unsupported syntax %T", n)
}

func (ev *evaluator) evalName(x *NameRef, env *Env) Value {
	if v, ok := env.Lookup(x.Name); ok {
		return v
	}
	if fn, ok := ev.reg.Lookup(x.Name); ok {
		return fn
	}
	return Null
}

func (ev *evaluator) evalBinary(x *BinaryOp, env *Env) (Value, error) {
	l, err := ev.eval(x.L, env)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "and":
		if l == Boolean(false) {
			return Boolean(false), nil
		}
		r, err := ev.eval(x.R, env)
		if err != nil {
			return nil, err
		}
		switch {
		case r == Boolean(false):
			return Boolean(false), nil
		case l == Boolean(true) && r == Boolean(true):
			return Boolean(true), nil
		}
		return Null, nil
	case "or":
		if l == Boolean(true) {
			return Boolean(true), nil
		}
		r, err := ev.eval(x.R, env)
		if err != nil {
			return nil, err
		}
		switch {
		case r == Boolean(true):
			return Boolean(true), nil
		case l == Boolean(false) && r == Boolean(false):
			return Boolean(false), nil
		}
		return Null, nil
	}
	r, err := ev.eval(x.R, env)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "+":
		return Add(l, r), nil
	case "-":
		return Sub(l, r), nil
	case "*":
		return Mul(l, r), nil
	case "/":
		return Div(l, r), nil
	case "**":
		return Pow(l, r), nil
	}
	return compareOp(x.Op, l, r), nil
}

// compareOp applies a comparison operator with three-valued results.
func compareOp(op string, l, r Value) Value {
	switch op {
	case "=":
		return Equal(l, r)
	case "!=":
		switch Equal(l, r) {
		case Boolean(true):
			return Boolean(false)
		case Boolean(false):
			return Boolean(true)
		}
		return Null
	}
	c, ok := Compare(l, r)
	if !ok {
		return Null
	}
	switch op {
	case "<":
		return Boolean(c < 0)
	case "<=":
		return Boolean(c <= 0)
	case ">":
		return Boolean(c > 0)
	case ">=":
		return Boolean(c >= 0)
	}
	return Null
}

func (ev *evaluator) evalBetween(x *Between, env *Env) (Value, error) {
	v, err := ev.eval(x.X, env)
	if err != nil {
		return nil, err
	}
	lo, err := ev.eval(x.Lo, env)
	if err != nil {
		return nil, err
	}
	hi, err := ev.eval(x.Hi, env)
	if err != nil {
		return nil, err
	}
	c1, ok1 := Compare(lo, v)
	c2, ok2 := Compare(v, hi)
	if !ok1 || !ok2 {
		return Null, nil
	}
	return Boolean(c1 <= 0 && c2 <= 0), nil
}

func (ev *evaluator) evalContext(x *ContextLit, env *Env) (Value, error) {
	b := NewContextBuilder()
	scope := env
	for _, e := range x.Entries {
		v, err := ev.eval(e.Value, scope)
		if err != nil {
			return nil, err
		}
		b.Set(e.Key, v)
		scope = scope.Bind(e.Key, v)
	}
	return b.Build(), nil
}

// evalFilter implements `target[filter]`. A numeric filter selects by
// 1-based index (negative indexes count from the end); any other filter is
// evaluated per item with `item` and the item's entries in scope.
func (ev *evaluator) evalFilter(x *Filter, env *Env) (Value, error) {
	target, err := ev.eval(x.X, env)
	if err != nil {
		return nil, err
	}
	if IsNull(target) {
		return Null, nil
	}
	outer, err := ev.eval(x.Filter, env)
	if err != nil {
		return nil, err
	}
	if c, ok := target.(*Context); ok {
		if key, ok := outer.(String); ok {
			if v, ok := c.Get(string(key)); ok {
				return v, nil
			}
			return Null, nil
		}
	}

	var items []Value
	if l, ok := target.(*List); ok {
		items = l.items
	} else {
		items = []Value{target}
	}

	if n, ok := outer.(Number); ok {
		idx, ok := n.Int64()
		if !ok || idx == 0 {
			return Null, nil
		}
		if idx < 0 {
			idx = int64(len(items)) + idx + 1
		}
		if idx < 1 || idx > int64(len(items)) {
			return Null, nil
		}
		return items[idx-1], nil
	}

	var out []Value
	for _, it := range items {
		scope := env
		if c, ok := it.(*Context); ok {
			scope = scope.Child(c.vals)
		}
		scope = scope.Bind("item", it)
		v, err := ev.eval(x.Filter, scope)
		if err != nil {
			return nil, err
		}
		if v == Boolean(true) {
			out = append(out, it)
		}
	}
	return listOf(out), nil
}

func (ev *evaluator) evalCall(x *Call, env *Env) (Value, error) {
	var fnv Value
	if ref, ok := x.Fn.(*NameRef); ok {
		if v, ok := env.Lookup(ref.Name); ok {
			fnv = v
		} else if fn, ok := ev.reg.Lookup(ref.Name); ok {
			fnv = fn
		} else {
			return nil, evalErrorf(x.P, "unknown function %q", ref.Name)
		}
	} else {
		v, err := ev.eval(x.Fn, env)
		if err != nil {
			return nil, err
		}
		fnv = v
	}
	fn, ok := fnv.(*Function)
	if !ok {
		return nil, evalErrorf(x.P, "cannot invoke %s value", fnv.Kind())
	}

	args := make([]Value, 0, len(x.Args))
	for _, a := range x.Args {
		v, err := ev.eval(a, env)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	if len(x.Named) > 0 {
		var err error
		if args, err = ev.namedArgs(fn, x, env); err != nil {
			return nil, err
		}
	}

	v, err := fn.Call(args)
	if err != nil {
		var ee *EvaluationError
		if errors.As(err, &ee) && ee.Pos.Line == 0 {
			return nil, &EvaluationError{Pos: x.P, Msg: ee.Msg, Err: ee.Err}
		}
		return nil, err
	}
	return v, nil
}

func (ev *evaluator) namedArgs(fn *Function, x *Call, env *Env) ([]Value, error) {
	index := make(map[string]int, len(fn.Params))
	for i, p := range fn.Params {
		index[p] = i
	}
	args := make([]Value, 0, len(fn.Params))
	set := make([]bool, len(fn.Params))
	for _, na := range x.Named {
		i, ok := index[na.Name]
		if !ok {
			return nil, evalErrorf(x.P, "function %s has no parameter named %q", fn, na.Name)
		}
		if set[i] {
			return nil, evalErrorf(x.P, "parameter %q given more than once", na.Name)
		}
		v, err := ev.eval(na.Value, env)
		if err != nil {
			return nil, err
		}
		for len(args) <= i {
			args = append(args, Null)
		}
		args[i] = v
		set[i] = true
	}
	for i := 0; i < fn.Required && i < len(set); i++ {
		if !set[i] {
			return nil, evalErrorf(x.P, "function %s: missing argument %q", fn, fn.Params[i])
		}
	}
	return args, nil
}

func (ev *evaluator) closure(lit *FunctionLit, env *Env) *Function {
	params := lit.Params
	return &Function{
		Params:   params,
		Required: len(params),
		Impl: func(args []Value) (Value, error) {
			b := make(map[string]Value, len(params))
			for i, p := range params {
				b[p] = args[i]
			}
			return ev.eval(lit.Body, env.Child(b))
		},
	}
}

// iterate runs fn for every combination of the iterators' domains. fn
// returns false to stop early.
func (ev *evaluator) iterate(its []Iterator, env *Env, fn func(*Env) (bool, error)) error {
	if len(its) == 0 {
		_, err := fn(env)
		return err
	}
	_, err := ev.iterateFrom(its, env, fn)
	return err
}

func (ev *evaluator) iterateFrom(its []Iterator, env *Env, fn func(*Env) (bool, error)) (bool, error) {
	if len(its) == 0 {
		return fn(env)
	}
	it := its[0]
	dom, err := ev.iterationDomain(it, env)
	if err != nil {
		return false, err
	}
	for _, v := range dom {
		more, err := ev.iterateFrom(its[1:], env.Bind(it.Name, v), fn)
		if err != nil || !more {
			return more, err
		}
	}
	return true, nil
}

func (ev *evaluator) iterationDomain(it Iterator, env *Env) ([]Value, error) {
	start, err := ev.eval(it.Domain, env)
	if err != nil {
		return nil, err
	}
	if it.End != nil {
		end, err := ev.eval(it.End, env)
		if err != nil {
			return nil, err
		}
		return integerSpan(start, end, true, true)
	}
	switch d := start.(type) {
	case *List:
		return d.items, nil
	case *Range:
		if d.Start == nil || d.End == nil {
			return nil, evalErrorf(it.Domain.Pos(), "cannot iterate over unbounded range")
		}
		return integerSpan(d.Start, d.End, d.StartIncluded, d.EndIncluded)
	case NullValue:
		return nil, nil
	}
	return []Value{start}, nil
}

// maxSpan bounds iteration over numeric ranges.
const maxSpan = 1_000_000

func integerSpan(a, b Value, startIncl, endIncl bool) ([]Value, error) {
	an, ok1 := a.(Number)
	bn, ok2 := b.(Number)
	if !ok1 || !ok2 {
		return nil, &EvaluationError{Msg: fmt.Sprintf("cannot iterate from %s to %s", a, b)}
	}
	lo, ok1 := an.Int64()
	hi, ok2 := bn.Int64()
	if !ok1 || !ok2 || !an.IsInteger() || !bn.IsInteger() {
		return nil, &EvaluationError{Msg: "iteration bounds must be integers"}
	}
	step := int64(1)
	// dist is |hi - lo|; it fits a uint64 even when the bounds are the
	// int64 extremes
	dist := uint64(hi) - uint64(lo)
	if hi < lo {
		step = -1
		dist = uint64(lo) - uint64(hi)
	}
	if !startIncl {
		if dist == 0 {
			return nil, nil
		}
		lo += step
		dist--
	}
	if !endIncl {
		if dist == 0 {
			return nil, nil
		}
		dist--
	}
	if dist >= maxSpan {
		return nil, &EvaluationError{Msg: "iteration range too large"}
	}
	out := make([]Value, 0, dist+1)
	for i, n := lo, uint64(0); n <= dist; i, n = i+step, n+1 {
		out = append(out, NewNumber(i))
	}
	return out, nil
}

func (ev *evaluator) evalQuantified(x *Quantified, env *Env) (Value, error) {
	result := x.Every
	err := ev.iterate(x.Iterators, env, func(inner *Env) (bool, error) {
		v, err := ev.eval(x.Satisfies, inner)
		if err != nil {
			return false, err
		}
		hit := v == Boolean(true)
		if x.Every && !hit {
			result = false
			return false, nil
		}
		if !x.Every && hit {
			result = true
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return Boolean(result), nil
}

// pathValue implements `v.name`. Paths over lists map over the items;
// missing properties yield Null.
func pathValue(v Value, name string) Value {
	switch x := v.(type) {
	case *Context:
		if val, ok := x.Get(name); ok {
			return val
		}
		return Null
	case *List:
		out := make([]Value, len(x.items))
		for i, it := range x.items {
			out[i] = pathValue(it, name)
		}
		return listOf(out)
	case *Range:
		switch name {
		case "start":
			return orNull(x.Start)
		case "end":
			return orNull(x.End)
		case "start included":
			return Boolean(x.StartIncluded)
		case "end included":
			return Boolean(x.EndIncluded)
		}
		return Null
	}
	if c, ok := temporalComponent(v, name); ok {
		return c
	}
	return Null
}

func orNull(v Value) Value {
	if v == nil {
		return Null
	}
	return v
}

func instanceOf(v Value, typ string) bool {
	if typ == "Any" {
		return !IsNull(v)
	}
	if typ == "Null" || typ == "null" {
		return IsNull(v)
	}
	if IsNull(v) {
		return false
	}
	return v.Kind().String() == typ
}

// matchTests reports whether candidate satisfies any of the tests. `-`
// matches without evaluating anything.
func (ev *evaluator) matchTests(ut *UnaryTests, candidate Value, env *Env) (bool, error) {
	if candidate == nil {
		candidate = Null
	}
	scope := env.Bind(candidateName, candidate)
	matched := false
	for _, t := range ut.Tests {
		ok, err := ev.matchTest(t, candidate, scope)
		if err != nil {
			return false, err
		}
		if ok {
			matched = true
			break
		}
	}
	if ut.Negated {
		return !matched, nil
	}
	return matched, nil
}

func (ev *evaluator) matchTest(t UnaryTest, candidate Value, env *Env) (bool, error) {
	switch x := t.(type) {
	case *AnyTest:
		return true, nil
	case *CompareTest:
		end, err := ev.eval(x.Endpoint, env)
		if err != nil {
			return false, err
		}
		return compareOp(x.Op, candidate, end) == Boolean(true), nil
	case *ExprTest:
		v, err := ev.eval(x.Expr, env)
		if err != nil {
			return false, err
		}
		return exprTestMatches(v, candidate, x.UsesCandidate), nil
	}
	return false, evalErrorf(t.Pos(), "unsupported unary test %T", t)
}

func exprTestMatches(v, candidate Value, usesCandidate bool) bool {
	switch x := v.(type) {
	case *Range:
		return x.Contains(candidate) == Boolean(true)
	case *List:
		if _, ok := candidate.(*List); ok && equalTrue(candidate, v) {
			return true
		}
		for _, it := range x.items {
			if r, ok := it.(*Range); ok {
				if r.Contains(candidate) == Boolean(true) {
					return true
				}
				continue
			}
			if equalTrue(candidate, it) {
				return true
			}
		}
		return false
	case Boolean:
		if usesCandidate {
			return bool(x)
		}
	}
	return equalTrue(candidate, v)
}
