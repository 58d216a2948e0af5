package feel

import (
	"strings"
)

// Compare orders two values of compatible kinds. ok is false when the values
// are not comparable (different kinds, null operands, booleans, lists, ...).
// Dates are promoted to midnight UTC when compared with date-times.
func Compare(a, b Value) (int, bool) {
	if IsNull(a) || IsNull(b) {
		return 0, false
	}
	switch x := a.(type) {
	case Number:
		y, ok := b.(Number)
		if !ok {
			return 0, false
		}
		return x.dec().Cmp(y.dec()), true
	case String:
		y, ok := b.(String)
		if !ok {
			return 0, false
		}
		return strings.Compare(string(x), string(y)), true
	case Date, DateTime:
		ta, _ := temporalInstant(a)
		tb, ok := temporalInstant(b)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	case Time:
		y, ok := b.(Time)
		if !ok {
			return 0, false
		}
		return cmpOrdered(x.secondsOfDay(), y.secondsOfDay()), true
	case YearsMonthsDuration:
		y, ok := b.(YearsMonthsDuration)
		if !ok {
			return 0, false
		}
		return cmpOrdered(x.months, y.months), true
	case DaysTimeDuration:
		y, ok := b.(DaysTimeDuration)
		if !ok {
			return 0, false
		}
		return cmpOrdered(x.d, y.d), true
	}
	return 0, false
}

func cmpOrdered[T ~int64 | ~int](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Equal implements the three-valued `=` operator. Two nulls are equal, null
// and a non-null value are not, and values of unrelated kinds yield Null.
func Equal(a, b Value) Value {
	an, bn := IsNull(a), IsNull(b)
	switch {
	case an && bn:
		return Boolean(true)
	case an || bn:
		return Boolean(false)
	}
	switch x := a.(type) {
	case Boolean:
		y, ok := b.(Boolean)
		if !ok {
			return Null
		}
		return Boolean(x == y)
	case *List:
		y, ok := b.(*List)
		if !ok {
			return Null
		}
		if x.Len() != y.Len() {
			return Boolean(false)
		}
		return allEqual(x.items, y.items)
	case *Context:
		y, ok := b.(*Context)
		if !ok {
			return Null
		}
		if x.Len() != y.Len() {
			return Boolean(false)
		}
		xs := make([]Value, 0, x.Len())
		ys := make([]Value, 0, x.Len())
		for _, k := range x.keys {
			yv, ok := y.vals[k]
			if !ok {
				return Boolean(false)
			}
			xs = append(xs, x.vals[k])
			ys = append(ys, yv)
		}
		return allEqual(xs, ys)
	case *Range:
		y, ok := b.(*Range)
		if !ok {
			return Null
		}
		if x.StartIncluded != y.StartIncluded || x.EndIncluded != y.EndIncluded {
			return Boolean(false)
		}
		if (x.Start == nil) != (y.Start == nil) || (x.End == nil) != (y.End == nil) {
			return Boolean(false)
		}
		var xs, ys []Value
		if x.Start != nil {
			xs, ys = append(xs, x.Start), append(ys, y.Start)
		}
		if x.End != nil {
			xs, ys = append(xs, x.End), append(ys, y.End)
		}
		return allEqual(xs, ys)
	case *Function:
		y, ok := b.(*Function)
		if !ok {
			return Null
		}
		return Boolean(x == y)
	}
	c, ok := Compare(a, b)
	if !ok {
		return Null
	}
	return Boolean(c == 0)
}

func allEqual(xs, ys []Value) Value {
	sawNull := false
	for i := range xs {
		switch Equal(xs[i], ys[i]) {
		case Boolean(false):
			return Boolean(false)
		case Boolean(true):
		default:
			sawNull = true
		}
	}
	if sawNull {
		return Null
	}
	return Boolean(true)
}

// equalTrue reports whether Equal(a, b) is true.
func equalTrue(a, b Value) bool {
	return Equal(a, b) == Boolean(true)
}
