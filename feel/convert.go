package feel

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// FromGo converts a Go value, typically decoded JSON, into a Value. Maps
// become contexts with keys in sorted order, slices become lists, and
// time.Time and time.Duration become date-times and durations.
func FromGo(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null, nil
	case Value:
		return x, nil
	case bool:
		return Boolean(x), nil
	case string:
		return String(x), nil
	case int:
		return NewNumber(int64(x)), nil
	case int8:
		return NewNumber(int64(x)), nil
	case int16:
		return NewNumber(int64(x)), nil
	case int32:
		return NewNumber(int64(x)), nil
	case int64:
		return NewNumber(x), nil
	case uint:
		return FromGo(uint64(x))
	case uint8:
		return NewNumber(int64(x)), nil
	case uint16:
		return NewNumber(int64(x)), nil
	case uint32:
		return NewNumber(int64(x)), nil
	case uint64:
		return ParseNumber(strconv.FormatUint(x, 10))
	case float32:
		return NumberFromFloat(float64(x))
	case float64:
		return NumberFromFloat(x)
	case json.Number:
		return ParseNumber(x.String())
	case *apd.Decimal:
		return NumberFromDecimal(x), nil
	case time.Time:
		return NewDateTime(x, true), nil
	case time.Duration:
		return DaysTimeDuration{d: x}, nil
	case []any:
		items := make([]Value, len(x))
		for i, it := range x {
			fv, err := FromGo(it)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = fv
		}
		return listOf(items), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b := NewContextBuilder()
		for _, k := range keys {
			fv, err := FromGo(x[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			b.Set(k, fv)
		}
		return b.Build(), nil
	}
	return fromReflect(reflect.ValueOf(v))
}

func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null, nil
		}
		return FromGo(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			fv, err := FromGo(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = fv
		}
		return listOf(items), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return FromGo(m)
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Boolean(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NewNumber(rv.Int()), nil
	case reflect.Float32, reflect.Float64:
		return NumberFromFloat(rv.Float())
	}
	return nil, fmt.Errorf("unsupported Go type %T", rv.Interface())
}

// ToGo converts a Value into plain Go data suitable for encoding/json or
// CEL: integral numbers become int64, other numbers float64, temporal values
// their string form, lists []any and contexts map[string]any.
func ToGo(v Value) any {
	switch x := v.(type) {
	case nil, NullValue:
		return nil
	case Number:
		if x.IsInteger() {
			if i, ok := x.Int64(); ok {
				return i
			}
		}
		return x.Float64()
	case String:
		return string(x)
	case Boolean:
		return bool(x)
	case *List:
		out := make([]any, len(x.items))
		for i, it := range x.items {
			out[i] = ToGo(it)
		}
		return out
	case *Context:
		out := make(map[string]any, len(x.keys))
		for _, k := range x.keys {
			out[k] = ToGo(x.vals[k])
		}
		return out
	}
	return v.String()
}
