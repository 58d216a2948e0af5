package feel

import (
	"strings"
	"time"
)

// Built-ins return Null for arguments of the wrong kind; only arity errors
// are reported as errors.

func has(args []Value, i int) bool {
	return i < len(args) && !IsNull(args[i])
}

func argString(args []Value, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].(String)
	return string(s), ok
}

func argNumber(args []Value, i int) (Number, bool) {
	if i >= len(args) {
		return Number{}, false
	}
	n, ok := args[i].(Number)
	return n, ok
}

func argInt(args []Value, i int) (int64, bool) {
	n, ok := argNumber(args, i)
	if !ok || !n.IsInteger() {
		return 0, false
	}
	return n.Int64()
}

// argList treats a non-list argument as a singleton list.
func argList(args []Value, i int) ([]Value, bool) {
	if i >= len(args) || IsNull(args[i]) {
		return nil, false
	}
	if l, ok := args[i].(*List); ok {
		return l.items, true
	}
	return []Value{args[i]}, true
}

// varargs accepts either a single list argument or the items themselves.
func varargs(args []Value) []Value {
	if len(args) == 1 {
		if l, ok := args[0].(*List); ok {
			return l.items
		}
	}
	return args
}

func registerConversionBuiltins(r *Registry) {
	r.define("date", []string{"from", "month", "day"}, 1, func(args []Value) (Value, error) {
		if len(args) == 3 {
			y, ok1 := argInt(args, 0)
			m, ok2 := argInt(args, 1)
			d, ok3 := argInt(args, 2)
			if !ok1 || !ok2 || !ok3 {
				return Null, nil
			}
			date, ok := NewDate(int(y), time.Month(m), int(d))
			if !ok {
				return Null, nil
			}
			return date, nil
		}
		switch x := args[0].(type) {
		case String:
			s := string(x)
			if strings.Contains(s, "T") {
				dt, err := ParseDateTime(s)
				if err != nil {
					return Null, nil
				}
				return DateOf(dt.t), nil
			}
			d, err := ParseDate(s)
			if err != nil {
				return Null, nil
			}
			return d, nil
		case Date:
			return x, nil
		case DateTime:
			return DateOf(x.t), nil
		}
		return Null, nil
	})

	r.define("time", []string{"from", "minute", "second", "offset"}, 1, func(args []Value) (Value, error) {
		if len(args) >= 3 {
			h, ok1 := argInt(args, 0)
			m, ok2 := argInt(args, 1)
			sec, ok3 := argNumber(args, 2)
			if !ok1 || !ok2 || !ok3 {
				return Null, nil
			}
			whole := int64(sec.Float64())
			nanos := int((sec.Float64() - float64(whole)) * 1e9)
			var loc *time.Location
			if has(args, 3) {
				off, ok := args[3].(DaysTimeDuration)
				if !ok {
					return Null, nil
				}
				loc = time.FixedZone("", int(off.d/time.Second))
			}
			t, ok := NewTime(int(h), int(m), int(whole), nanos, loc)
			if !ok {
				return Null, nil
			}
			return t, nil
		}
		switch x := args[0].(type) {
		case String:
			s := string(x)
			if strings.Contains(s, "T") {
				dt, err := ParseDateTime(s)
				if err != nil {
					return Null, nil
				}
				return timeOf(dt), nil
			}
			t, err := ParseTime(s)
			if err != nil {
				return Null, nil
			}
			return t, nil
		case Time:
			return x, nil
		case DateTime:
			return timeOf(x), nil
		case Date:
			t, _ := NewTime(0, 0, 0, 0, time.UTC)
			return t, nil
		}
		return Null, nil
	})

	r.define("date and time", []string{"from", "time"}, 1, func(args []Value) (Value, error) {
		if len(args) == 2 {
			var d time.Time
			switch x := args[0].(type) {
			case Date:
				d = x.t
			case DateTime:
				d = x.t
			default:
				return Null, nil
			}
			t, ok := args[1].(Time)
			if !ok {
				return Null, nil
			}
			loc := t.t.Location()
			return DateTime{
				t:     time.Date(d.Year(), d.Month(), d.Day(), t.t.Hour(), t.t.Minute(), t.t.Second(), t.t.Nanosecond(), loc),
				zoned: t.zoned,
			}, nil
		}
		switch x := args[0].(type) {
		case String:
			dt, err := ParseDateTime(string(x))
			if err != nil {
				return Null, nil
			}
			return dt, nil
		case DateTime:
			return x, nil
		case Date:
			return NewDateTime(x.t, false), nil
		}
		return Null, nil
	})

	r.define("duration", []string{"from"}, 1, func(args []Value) (Value, error) {
		switch x := args[0].(type) {
		case String:
			d, err := ParseDuration(string(x))
			if err != nil {
				return Null, nil
			}
			return d, nil
		case YearsMonthsDuration, DaysTimeDuration:
			return x, nil
		}
		return Null, nil
	})

	r.define("years and months duration", []string{"from", "to"}, 2, func(args []Value) (Value, error) {
		from, ok1 := temporalInstant(args[0])
		to, ok2 := temporalInstant(args[1])
		if !ok1 || !ok2 {
			return Null, nil
		}
		return YearsMonthsDuration{months: monthsBetween(from, to)}, nil
	})

	r.define("number", []string{"from", "grouping separator", "decimal separator"}, 1, func(args []Value) (Value, error) {
		if n, ok := argNumber(args, 0); ok {
			return n, nil
		}
		s, ok := argString(args, 0)
		if !ok {
			return Null, nil
		}
		if g, ok := argString(args, 1); ok {
			if g != " " && g != "," && g != "." {
				return Null, nil
			}
			s = strings.ReplaceAll(s, g, "")
		}
		if d, ok := argString(args, 2); ok {
			if d != "," && d != "." {
				return Null, nil
			}
			s = strings.ReplaceAll(s, d, ".")
		}
		n, err := ParseNumber(s)
		if err != nil {
			return Null, nil
		}
		return n, nil
	})

	r.define("string", []string{"from"}, 1, func(args []Value) (Value, error) {
		if IsNull(args[0]) {
			return Null, nil
		}
		return String(toText(args[0])), nil
	})

	r.define("now", nil, 0, func(args []Value) (Value, error) {
		return NewDateTime(r.now(), true), nil
	})

	r.define("today", nil, 0, func(args []Value) (Value, error) {
		return DateOf(r.now()), nil
	})
}

// toText renders v the way string() does: strings are not quoted.
func toText(v Value) string {
	if s, ok := v.(String); ok {
		return string(s)
	}
	return v.String()
}

func timeOf(dt DateTime) Time {
	t, _ := NewTime(dt.t.Hour(), dt.t.Minute(), dt.t.Second(), dt.t.Nanosecond(), nil)
	if dt.zoned {
		t.t = time.Date(1970, 1, 1, dt.t.Hour(), dt.t.Minute(), dt.t.Second(), dt.t.Nanosecond(), dt.t.Location())
		t.zoned = true
	}
	return t
}
