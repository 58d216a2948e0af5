package feel

import (
	"regexp"
	"strings"
)

func registerBooleanBuiltins(r *Registry) {
	r.define("not", []string{"negand"}, 1, func(args []Value) (Value, error) {
		if b, ok := args[0].(Boolean); ok {
			return !b, nil
		}
		return Null, nil
	})

	all := func(args []Value) (Value, error) {
		result := Value(Boolean(true))
		for _, v := range varargs(args) {
			switch v {
			case Boolean(false):
				return Boolean(false), nil
			case Boolean(true):
			default:
				result = Null
			}
		}
		return result, nil
	}
	r.defineVariadic("all", 0, all)
	anyFn := func(args []Value) (Value, error) {
		result := Value(Boolean(false))
		for _, v := range varargs(args) {
			switch v {
			case Boolean(true):
				return Boolean(true), nil
			case Boolean(false):
			default:
				result = Null
			}
		}
		return result, nil
	}
	r.defineVariadic("any", 0, anyFn)

	r.define("is defined", []string{"value"}, 1, func(args []Value) (Value, error) {
		return Boolean(!IsNull(args[0])), nil
	})
}

func registerStringBuiltins(r *Registry) {
	r.define("substring", []string{"string", "start position", "length"}, 2, func(args []Value) (Value, error) {
		s, ok := argString(args, 0)
		if !ok {
			return Null, nil
		}
		start, ok := argInt(args, 1)
		if !ok || start == 0 {
			return Null, nil
		}
		runes := []rune(s)
		n := int64(len(runes))
		if start < 0 {
			start = n + start + 1
			if start < 1 {
				start = 1
			}
		}
		if start > n {
			return String(""), nil
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
		return String(runes[start-1 : end]), nil
	})

	r.define("string length", []string{"string"}, 1, func(args []Value) (Value, error) {
		s, ok := argString(args, 0)
		if !ok {
			return Null, nil
		}
		return NewNumber(int64(len([]rune(s)))), nil
	})

	r.define("upper case", []string{"string"}, 1, stringMap(strings.ToUpper))
	r.define("lower case", []string{"string"}, 1, stringMap(strings.ToLower))

	r.define("substring before", []string{"string", "match"}, 2, stringPair(func(s, m string) Value {
		before, _, found := strings.Cut(s, m)
		if !found {
			return String("")
		}
		return String(before)
	}))
	r.define("substring after", []string{"string", "match"}, 2, stringPair(func(s, m string) Value {
		_, after, found := strings.Cut(s, m)
		if !found {
			return String("")
		}
		return String(after)
	}))
	r.define("contains", []string{"string", "match"}, 2, stringPair(func(s, m string) Value {
		return Boolean(strings.Contains(s, m))
	}))
	r.define("starts with", []string{"string", "match"}, 2, stringPair(func(s, m string) Value {
		return Boolean(strings.HasPrefix(s, m))
	}))
	r.define("ends with", []string{"string", "match"}, 2, stringPair(func(s, m string) Value {
		return Boolean(strings.HasSuffix(s, m))
	}))

	r.define("matches", []string{"input", "pattern", "flags"}, 2, func(args []Value) (Value, error) {
		s, ok := argString(args, 0)
		if !ok {
			return Null, nil
		}
		re, ok := compilePattern(args, 1, 2)
		if !ok {
			return Null, nil
		}
		return Boolean(re.MatchString(s)), nil
	})

	r.define("replace", []string{"input", "pattern", "replacement", "flags"}, 3, func(args []Value) (Value, error) {
		s, ok := argString(args, 0)
		if !ok {
			return Null, nil
		}
		repl, ok := argString(args, 2)
		if !ok {
			return Null, nil
		}
		re, ok := compilePattern(args, 1, 3)
		if !ok {
			return Null, nil
		}
		return String(re.ReplaceAllString(s, repl)), nil
	})

	r.define("split", []string{"string", "delimiter"}, 2, func(args []Value) (Value, error) {
		s, ok := argString(args, 0)
		if !ok {
			return Null, nil
		}
		re, ok := compilePattern(args, 1, -1)
		if !ok {
			return Null, nil
		}
		parts := re.Split(s, -1)
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = String(p)
		}
		return listOf(out), nil
	})

	r.define("string join", []string{"list", "delimiter"}, 1, func(args []Value) (Value, error) {
		items, ok := argList(args, 0)
		if !ok {
			return Null, nil
		}
		sep := ""
		if has(args, 1) {
			if sep, ok = argString(args, 1); !ok {
				return Null, nil
			}
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if IsNull(it) {
				continue
			}
			s, ok := it.(String)
			if !ok {
				return Null, nil
			}
			parts = append(parts, string(s))
		}
		return String(strings.Join(parts, sep)), nil
	})
}

func stringMap(fn func(string) string) BuiltinFunc {
	return func(args []Value) (Value, error) {
		s, ok := argString(args, 0)
		if !ok {
			return Null, nil
		}
		return String(fn(s)), nil
	}
}

func stringPair(fn func(s, m string) Value) BuiltinFunc {
	return func(args []Value) (Value, error) {
		s, ok1 := argString(args, 0)
		m, ok2 := argString(args, 1)
		if !ok1 || !ok2 {
			return Null, nil
		}
		return fn(s, m), nil
	}
}

// compilePattern builds a regexp from the pattern argument and the optional
// flags argument (i, s, m and x).
func compilePattern(args []Value, patternIdx, flagsIdx int) (*regexp.Regexp, bool) {
	pattern, ok := argString(args, patternIdx)
	if !ok {
		return nil, false
	}
	if flagsIdx >= 0 && has(args, flagsIdx) {
		flags, ok := argString(args, flagsIdx)
		if !ok {
			return nil, false
		}
		var goFlags strings.Builder
		for _, f := range flags {
			switch f {
			case 'i', 's', 'm':
				goFlags.WriteRune(f)
			case 'x':
				pattern = stripPatternSpace(pattern)
			default:
				return nil, false
			}
		}
		if goFlags.Len() > 0 {
			pattern = "(?" + goFlags.String() + ")" + pattern
		}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, false
	}
	return re, true
}

func stripPatternSpace(p string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, p)
}
