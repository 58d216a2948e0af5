package feel

import (
	"github.com/cockroachdb/apd/v3"
)

func roundingContext(mode apd.Rounder) *apd.Context {
	c := decimalContext.WithPrecision(decimalContext.Precision)
	c.Rounding = mode
	return c
}

var (
	roundHalfEven = roundingContext(apd.RoundHalfEven)
	roundFloor    = roundingContext(apd.RoundFloor)
	roundCeiling  = roundingContext(apd.RoundCeiling)
	roundUp       = roundingContext(apd.RoundUp)
	roundDown     = roundingContext(apd.RoundDown)
	roundHalfUp   = roundingContext(apd.RoundHalfUp)
	roundHalfDown = roundingContext(apd.RoundHalfDown)
)

// roundTo rounds n to scale digits after the decimal point.
func roundTo(ctx *apd.Context, n Number, scale int64) Value {
	if scale < -6111 || scale > 6176 {
		return Null
	}
	d := new(apd.Decimal)
	if _, err := ctx.Quantize(d, n.dec(), int32(-scale)); err != nil {
		return Null
	}
	return Number{d: d}
}

// rounder builds a (n, scale) built-in. When scaleOptional is set the
// scale defaults to 0.
func rounder(ctx *apd.Context, scaleOptional bool) BuiltinFunc {
	return func(args []Value) (Value, error) {
		n, ok := argNumber(args, 0)
		if !ok {
			return Null, nil
		}
		scale := int64(0)
		if has(args, 1) || !scaleOptional {
			if scale, ok = argInt(args, 1); !ok {
				return Null, nil
			}
		}
		return roundTo(ctx, n, scale), nil
	}
}

func unaryDecimal(op func(d, x *apd.Decimal) (apd.Condition, error)) BuiltinFunc {
	return func(args []Value) (Value, error) {
		n, ok := argNumber(args, 0)
		if !ok {
			return Null, nil
		}
		d := new(apd.Decimal)
		if _, err := op(d, n.dec()); err != nil || d.Form != apd.Finite {
			return Null, nil
		}
		return Number{d: d}, nil
	}
}

func registerNumericBuiltins(r *Registry) {
	r.define("decimal", []string{"n", "scale"}, 2, rounder(roundHalfEven, false))
	r.define("floor", []string{"n", "scale"}, 1, rounder(roundFloor, true))
	r.define("ceiling", []string{"n", "scale"}, 1, rounder(roundCeiling, true))
	r.define("round up", []string{"n", "scale"}, 2, rounder(roundUp, false))
	r.define("round down", []string{"n", "scale"}, 2, rounder(roundDown, false))
	r.define("round half up", []string{"n", "scale"}, 2, rounder(roundHalfUp, false))
	r.define("round half down", []string{"n", "scale"}, 2, rounder(roundHalfDown, false))

	r.define("abs", []string{"n"}, 1, func(args []Value) (Value, error) {
		switch x := args[0].(type) {
		case Number:
			d := new(apd.Decimal)
			d.Abs(x.dec())
			return Number{d: d}, nil
		case YearsMonthsDuration:
			if x.months < 0 {
				return YearsMonthsDuration{months: -x.months}, nil
			}
			return x, nil
		case DaysTimeDuration:
			if x.d < 0 {
				return DaysTimeDuration{d: -x.d}, nil
			}
			return x, nil
		}
		return Null, nil
	})

	r.define("modulo", []string{"dividend", "divisor"}, 2, func(args []Value) (Value, error) {
		a, ok1 := argNumber(args, 0)
		b, ok2 := argNumber(args, 1)
		if !ok1 || !ok2 || b.Sign() == 0 {
			return Null, nil
		}
		// floored modulo: the result takes the sign of the divisor
		rem := new(apd.Decimal)
		if _, err := decimalContext.Rem(rem, a.dec(), b.dec()); err != nil {
			return Null, nil
		}
		if !rem.IsZero() && rem.Sign() != b.Sign() {
			if _, err := decimalContext.Add(rem, rem, b.dec()); err != nil {
				return Null, nil
			}
		}
		return Number{d: rem}, nil
	})

	r.define("sqrt", []string{"number"}, 1, func(args []Value) (Value, error) {
		n, ok := argNumber(args, 0)
		if !ok || n.Sign() < 0 {
			return Null, nil
		}
		return unaryDecimal(decimalContext.Sqrt)(args)
	})

	r.define("log", []string{"number"}, 1, func(args []Value) (Value, error) {
		n, ok := argNumber(args, 0)
		if !ok || n.Sign() <= 0 {
			return Null, nil
		}
		return unaryDecimal(decimalContext.Ln)(args)
	})

	r.define("exp", []string{"number"}, 1, unaryDecimal(decimalContext.Exp))

	r.define("odd", []string{"number"}, 1, parity(1))
	r.define("even", []string{"number"}, 1, parity(0))
}

func parity(want int64) BuiltinFunc {
	return func(args []Value) (Value, error) {
		n, ok := argNumber(args, 0)
		if !ok || !n.IsInteger() {
			return Null, nil
		}
		rem := new(apd.Decimal)
		if _, err := decimalContext.Rem(rem, n.dec(), apd.New(2, 0)); err != nil {
			return Null, nil
		}
		rem.Abs(rem)
		r, err := rem.Int64()
		if err != nil {
			return Null, nil
		}
		return Boolean(r == want), nil
	}
}
