package feel

import (
	"time"
)

func registerTemporalBuiltins(r *Registry) {
	r.define("day of year", []string{"date"}, 1, dateFunc(func(t time.Time) Value {
		return NewNumber(int64(t.YearDay()))
	}))
	r.define("day of week", []string{"date"}, 1, dateFunc(func(t time.Time) Value {
		return String(t.Weekday().String())
	}))
	r.define("month of year", []string{"date"}, 1, dateFunc(func(t time.Time) Value {
		return String(t.Month().String())
	}))
	r.define("week of year", []string{"date"}, 1, dateFunc(func(t time.Time) Value {
		_, week := t.ISOWeek()
		return NewNumber(int64(week))
	}))
}

func dateFunc(fn func(time.Time) Value) BuiltinFunc {
	return func(args []Value) (Value, error) {
		switch x := args[0].(type) {
		case Date:
			return fn(x.t), nil
		case DateTime:
			return fn(x.t), nil
		}
		return Null, nil
	}
}
