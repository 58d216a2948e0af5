package feel

import (
	"sort"

	"github.com/cockroachdb/apd/v3"
)

func registerListBuiltins(r *Registry) {
	r.define("list contains", []string{"list", "element"}, 2, func(args []Value) (Value, error) {
		items, ok := argList(args, 0)
		if !ok {
			return Null, nil
		}
		for _, it := range items {
			if equalTrue(it, args[1]) {
				return Boolean(true), nil
			}
		}
		return Boolean(false), nil
	})

	r.define("count", []string{"list"}, 1, func(args []Value) (Value, error) {
		items, ok := argList(args, 0)
		if !ok {
			return Null, nil
		}
		return NewNumber(int64(len(items))), nil
	})

	r.defineVariadic("min", 1, extremum(-1))
	r.defineVariadic("max", 1, extremum(1))

	r.defineVariadic("sum", 1, func(args []Value) (Value, error) {
		return sumValues(varargs(args)), nil
	})

	r.defineVariadic("product", 1, func(args []Value) (Value, error) {
		nums, ok := numbers(varargs(args))
		if !ok || len(nums) == 0 {
			return Null, nil
		}
		acc := Value(NewNumber(1))
		for _, n := range nums {
			acc = Mul(acc, n)
		}
		return acc, nil
	})

	r.defineVariadic("mean", 1, func(args []Value) (Value, error) {
		items := varargs(args)
		nums, ok := numbers(items)
		if !ok || len(nums) == 0 {
			return Null, nil
		}
		return Div(sumValues(items), NewNumber(int64(len(nums)))), nil
	})

	r.defineVariadic("median", 1, func(args []Value) (Value, error) {
		nums, ok := numbers(varargs(args))
		if !ok || len(nums) == 0 {
			return Null, nil
		}
		sortNumbers(nums)
		mid := len(nums) / 2
		if len(nums)%2 == 1 {
			return nums[mid], nil
		}
		return Div(Add(nums[mid-1], nums[mid]), NewNumber(2)), nil
	})

	r.defineVariadic("stddev", 1, func(args []Value) (Value, error) {
		nums, ok := numbers(varargs(args))
		if !ok || len(nums) < 2 {
			return Null, nil
		}
		n := apd.New(int64(len(nums)), 0)
		sum := new(apd.Decimal)
		for _, x := range nums {
			if _, err := decimalContext.Add(sum, sum, x.dec()); err != nil {
				return Null, nil
			}
		}
		mean := new(apd.Decimal)
		if _, err := decimalContext.Quo(mean, sum, n); err != nil {
			return Null, nil
		}
		sq, d := new(apd.Decimal), new(apd.Decimal)
		for _, x := range nums {
			decimalContext.Sub(d, x.dec(), mean)
			decimalContext.Mul(d, d, d)
			decimalContext.Add(sq, sq, d)
		}
		variance := new(apd.Decimal)
		if _, err := decimalContext.Quo(variance, sq, apd.New(int64(len(nums)-1), 0)); err != nil {
			return Null, nil
		}
		out := new(apd.Decimal)
		if _, err := decimalContext.Sqrt(out, variance); err != nil || out.Form != apd.Finite {
			return Null, nil
		}
		return Number{d: out}, nil
	})

	r.defineVariadic("mode", 0, func(args []Value) (Value, error) {
		nums, ok := numbers(varargs(args))
		if !ok {
			return Null, nil
		}
		counts := map[string]int{}
		byKey := map[string]Number{}
		best := 0
		for _, n := range nums {
			k := n.String()
			counts[k]++
			byKey[k] = n
			if counts[k] > best {
				best = counts[k]
			}
		}
		var out []Number
		for k, c := range counts {
			if c == best {
				out = append(out, byKey[k])
			}
		}
		sortNumbers(out)
		vals := make([]Value, len(out))
		for i, n := range out {
			vals[i] = n
		}
		return listOf(vals), nil
	})

	r.define("sublist", []string{"list", "start position", "length"}, 2, func(args []Value) (Value, error) {
		items, ok := argList(args, 0)
		if !ok {
			return Null, nil
		}
		start, ok := argInt(args, 1)
		if !ok || start == 0 {
			return Null, nil
		}
		n := int64(len(items))
		if start < 0 {
			start = n + start + 1
		}
		if start < 1 || start > n {
			return Null, nil
		}
		end := n
		if has(args, 2) {
			length, ok := argInt(args, 2)
			if !ok || length < 0 {
				return Null, nil
			}
			if start-1+length < end {
				end = start - 1 + length
			}
		}
		return NewList(items[start-1 : end]...), nil
	})

	r.register(&Function{Name: "append", Params: []string{"list", "item"}, Required: 1, Variadic: true, Impl: func(args []Value) (Value, error) {
		items, ok := argList(args, 0)
		if !ok {
			return Null, nil
		}
		out := append(append([]Value{}, items...), args[1:]...)
		return listOf(out), nil
	}})

	r.defineVariadic("concatenate", 0, func(args []Value) (Value, error) {
		var out []Value
		for _, a := range args {
			l, ok := a.(*List)
			if !ok {
				return Null, nil
			}
			out = append(out, l.items...)
		}
		return listOf(out), nil
	})

	r.define("insert before", []string{"list", "position", "newItem"}, 3, func(args []Value) (Value, error) {
		items, ok := argList(args, 0)
		if !ok {
			return Null, nil
		}
		i, ok := listPosition(args, 1, len(items))
		if !ok {
			return Null, nil
		}
		out := make([]Value, 0, len(items)+1)
		out = append(out, items[:i]...)
		out = append(out, args[2])
		out = append(out, items[i:]...)
		return listOf(out), nil
	})

	r.define("remove", []string{"list", "position"}, 2, func(args []Value) (Value, error) {
		items, ok := argList(args, 0)
		if !ok {
			return Null, nil
		}
		i, ok := listPosition(args, 1, len(items))
		if !ok {
			return Null, nil
		}
		out := make([]Value, 0, len(items)-1)
		out = append(out, items[:i]...)
		out = append(out, items[i+1:]...)
		return listOf(out), nil
	})

	r.define("reverse", []string{"list"}, 1, func(args []Value) (Value, error) {
		items, ok := argList(args, 0)
		if !ok {
			return Null, nil
		}
		out := make([]Value, len(items))
		for i, it := range items {
			out[len(items)-1-i] = it
		}
		return listOf(out), nil
	})

	r.define("index of", []string{"list", "match"}, 2, func(args []Value) (Value, error) {
		items, ok := argList(args, 0)
		if !ok {
			return Null, nil
		}
		var out []Value
		for i, it := range items {
			if equalTrue(it, args[1]) {
				out = append(out, NewNumber(int64(i+1)))
			}
		}
		return listOf(out), nil
	})

	r.defineVariadic("union", 0, func(args []Value) (Value, error) {
		var all []Value
		for _, a := range args {
			l, ok := a.(*List)
			if !ok {
				return Null, nil
			}
			all = append(all, l.items...)
		}
		return listOf(distinct(all)), nil
	})

	r.define("distinct values", []string{"list"}, 1, func(args []Value) (Value, error) {
		items, ok := argList(args, 0)
		if !ok {
			return Null, nil
		}
		return listOf(distinct(items)), nil
	})

	r.define("flatten", []string{"list"}, 1, func(args []Value) (Value, error) {
		items, ok := argList(args, 0)
		if !ok {
			return Null, nil
		}
		return listOf(flatten(nil, items)), nil
	})

	r.define("sort", []string{"list", "precedes"}, 1, func(args []Value) (Value, error) {
		items, ok := argList(args, 0)
		if !ok {
			return Null, nil
		}
		out := append([]Value{}, items...)
		var precedes *Function
		if has(args, 1) {
			if precedes, ok = args[1].(*Function); !ok {
				return Null, nil
			}
		}
		var sortErr error
		ordered := true
		sort.SliceStable(out, func(i, j int) bool {
			if sortErr != nil || !ordered {
				return false
			}
			if precedes != nil {
				v, err := precedes.Call([]Value{out[i], out[j]})
				if err != nil {
					sortErr = err
					return false
				}
				return v == Boolean(true)
			}
			c, ok := Compare(out[i], out[j])
			if !ok {
				ordered = false
				return false
			}
			return c < 0
		})
		if sortErr != nil {
			return nil, sortErr
		}
		if !ordered {
			return Null, nil
		}
		return listOf(out), nil
	})
}

// register is define for definitions that need the full Function shape.
func (r *Registry) register(fn *Function) {
	if err := r.Register(fn); err != nil {
		panic(err)
	}
}

func extremum(sign int) BuiltinFunc {
	return func(args []Value) (Value, error) {
		items := varargs(args)
		if len(items) == 0 {
			return Null, nil
		}
		best := items[0]
		for _, it := range items[1:] {
			c, ok := Compare(it, best)
			if !ok {
				return Null, nil
			}
			if c*sign > 0 {
				best = it
			}
		}
		if len(items) == 1 {
			if _, ok := Compare(best, best); !ok {
				return Null, nil
			}
		}
		return best, nil
	}
}

// sumValues adds numbers or durations; an empty list sums to Null.
func sumValues(items []Value) Value {
	if len(items) == 0 {
		return Null
	}
	acc := items[0]
	for _, it := range items[1:] {
		acc = Add(acc, it)
		if IsNull(acc) {
			return Null
		}
	}
	switch acc.(type) {
	case Number, YearsMonthsDuration, DaysTimeDuration:
		return acc
	}
	return Null
}

func numbers(items []Value) ([]Number, bool) {
	out := make([]Number, len(items))
	for i, it := range items {
		n, ok := it.(Number)
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

func sortNumbers(nums []Number) {
	sort.Slice(nums, func(i, j int) bool {
		return nums[i].dec().Cmp(nums[j].dec()) < 0
	})
}

// listPosition converts a 1-based (or negative) position to an index.
func listPosition(args []Value, i int, n int) (int, bool) {
	p, ok := argInt(args, i)
	if !ok || p == 0 {
		return 0, false
	}
	if p < 0 {
		p = int64(n) + p + 1
	}
	if p < 1 || p > int64(n) {
		return 0, false
	}
	return int(p - 1), true
}

func distinct(items []Value) []Value {
	var out []Value
	for _, it := range items {
		dup := false
		for _, seen := range out {
			if equalTrue(seen, it) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, it)
		}
	}
	return out
}

func flatten(dst, items []Value) []Value {
	for _, it := range items {
		if l, ok := it.(*List); ok {
			dst = flatten(dst, l.items)
			continue
		}
		dst = append(dst, it)
	}
	return dst
}
