package feel

import (
	"math"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Arithmetic never fails: operands of unsupported kinds, null operands and
// division by zero all yield Null.

type decimalOp func(d, x, y *apd.Decimal) (apd.Condition, error)

func numberOp(op decimalOp, x, y Number) Value {
	d := new(apd.Decimal)
	if _, err := op(d, x.dec(), y.dec()); err != nil {
		return Null
	}
	if d.Form != apd.Finite {
		return Null
	}
	return Number{d: d}
}

// Add implements `+`.
func Add(a, b Value) Value {
	switch x := a.(type) {
	case Number:
		if y, ok := b.(Number); ok {
			return numberOp(decimalContext.Add, x, y)
		}
	case String:
		if y, ok := b.(String); ok {
			return x + y
		}
	case Date:
		switch y := b.(type) {
		case YearsMonthsDuration:
			return Date{t: addMonths(x.t, y.months)}
		case DaysTimeDuration:
			return DateOf(x.t.Add(y.d))
		}
	case DateTime:
		switch y := b.(type) {
		case YearsMonthsDuration:
			return DateTime{t: addMonths(x.t, y.months), zoned: x.zoned}
		case DaysTimeDuration:
			return DateTime{t: x.t.Add(y.d), zoned: x.zoned}
		}
	case Time:
		if y, ok := b.(DaysTimeDuration); ok {
			return x.add(y.d)
		}
	case YearsMonthsDuration:
		switch y := b.(type) {
		case YearsMonthsDuration:
			return YearsMonthsDuration{months: x.months + y.months}
		case Date, DateTime:
			return Add(b, a)
		}
	case DaysTimeDuration:
		switch y := b.(type) {
		case DaysTimeDuration:
			d, ok := addDurations(x.d, y.d)
			if !ok {
				return Null
			}
			return DaysTimeDuration{d: d}
		case Date, DateTime, Time:
			return Add(b, a)
		}
	}
	return Null
}

// Sub implements binary `-`.
func Sub(a, b Value) Value {
	switch x := a.(type) {
	case Number:
		if y, ok := b.(Number); ok {
			return numberOp(decimalContext.Sub, x, y)
		}
	case Date, DateTime:
		switch y := b.(type) {
		case Date, DateTime:
			ta, _ := temporalInstant(x)
			tb, _ := temporalInstant(y)
			d, ok := spanBetween(ta, tb)
			if !ok {
				return Null
			}
			return DaysTimeDuration{d: d}
		case YearsMonthsDuration:
			return Add(a, YearsMonthsDuration{months: -y.months})
		case DaysTimeDuration:
			if y.d == math.MinInt64 {
				return Null
			}
			return Add(a, DaysTimeDuration{d: -y.d})
		}
	case Time:
		switch y := b.(type) {
		case Time:
			return DaysTimeDuration{d: x.secondsOfDay() - y.secondsOfDay()}
		case DaysTimeDuration:
			return x.add(-y.d)
		}
	case YearsMonthsDuration:
		if y, ok := b.(YearsMonthsDuration); ok {
			return YearsMonthsDuration{months: x.months - y.months}
		}
	case DaysTimeDuration:
		if y, ok := b.(DaysTimeDuration); ok {
			if y.d == math.MinInt64 {
				return Null
			}
			d, ok := addDurations(x.d, -y.d)
			if !ok {
				return Null
			}
			return DaysTimeDuration{d: d}
		}
	}
	return Null
}

// Mul implements `*`.
func Mul(a, b Value) Value {
	switch x := a.(type) {
	case Number:
		switch y := b.(type) {
		case Number:
			return numberOp(decimalContext.Mul, x, y)
		case YearsMonthsDuration, DaysTimeDuration:
			return Mul(b, a)
		}
	case YearsMonthsDuration:
		if y, ok := b.(Number); ok {
			m, ok := scaleInt(x.months, y, decimalContext.Mul)
			if !ok {
				return Null
			}
			return YearsMonthsDuration{months: m}
		}
	case DaysTimeDuration:
		if y, ok := b.(Number); ok {
			d, ok := scaleInt(int64(x.d), y, decimalContext.Mul)
			if !ok || d == math.MinInt64 {
				return Null
			}
			return DaysTimeDuration{d: time.Duration(d)}
		}
	}
	return Null
}

// Div implements `/`.
func Div(a, b Value) Value {
	switch x := a.(type) {
	case Number:
		if y, ok := b.(Number); ok {
			if y.Sign() == 0 {
				return Null
			}
			return numberOp(decimalContext.Quo, x, y)
		}
	case YearsMonthsDuration:
		switch y := b.(type) {
		case Number:
			if y.Sign() == 0 {
				return Null
			}
			m, ok := scaleInt(x.months, y, decimalContext.Quo)
			if !ok {
				return Null
			}
			return YearsMonthsDuration{months: m}
		case YearsMonthsDuration:
			if y.months == 0 {
				return Null
			}
			return numberOp(decimalContext.Quo, NewNumber(x.months), NewNumber(y.months))
		}
	case DaysTimeDuration:
		switch y := b.(type) {
		case Number:
			if y.Sign() == 0 {
				return Null
			}
			d, ok := scaleInt(int64(x.d), y, decimalContext.Quo)
			if !ok || d == math.MinInt64 {
				return Null
			}
			return DaysTimeDuration{d: time.Duration(d)}
		case DaysTimeDuration:
			if y.d == 0 {
				return Null
			}
			return numberOp(decimalContext.Quo, NewNumber(int64(x.d)), NewNumber(int64(y.d)))
		}
	}
	return Null
}

// Pow implements `**`.
func Pow(a, b Value) Value {
	x, ok := a.(Number)
	if !ok {
		return Null
	}
	y, ok := b.(Number)
	if !ok {
		return Null
	}
	if x.Sign() == 0 && y.Sign() < 0 {
		return Null
	}
	return numberOp(decimalContext.Pow, x, y)
}

// Negate implements unary `-`.
func Negate(v Value) Value {
	switch x := v.(type) {
	case Number:
		d := new(apd.Decimal)
		d.Neg(x.dec())
		return Number{d: d}
	case YearsMonthsDuration:
		return YearsMonthsDuration{months: -x.months}
	case DaysTimeDuration:
		return DaysTimeDuration{d: -x.d}
	}
	return Null
}

// truncContext rounds toward zero.
var truncContext = func() *apd.Context {
	c := decimalContext.WithPrecision(decimalContext.Precision)
	c.Rounding = apd.RoundDown
	return c
}()

// scaleInt applies op to an integer quantity and a number, truncating the
// result toward zero.
func scaleInt(q int64, n Number, op decimalOp) (int64, bool) {
	d := new(apd.Decimal)
	if _, err := op(d, apd.New(q, 0), n.dec()); err != nil {
		return 0, false
	}
	var t apd.Decimal
	if _, err := truncContext.RoundToIntegralValue(&t, d); err != nil {
		return 0, false
	}
	i, err := t.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

func (t Time) add(d time.Duration) Time {
	day := 24 * time.Hour
	d %= day
	u := t.t.Add(d)
	// stay on the reference day
	u = time.Date(1970, 1, 1, u.Hour(), u.Minute(), u.Second(), u.Nanosecond(), u.Location())
	return Time{t: u, zoned: t.zoned}
}
