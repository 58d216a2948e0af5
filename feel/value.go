package feel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Kind identifies the variant of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBoolean
	KindDate
	KindTime
	KindDateTime
	KindYearsMonthsDuration
	KindDaysTimeDuration
	KindList
	KindContext
	KindRange
	KindFunction
)

var kindNames = map[Kind]string{
	KindNull:                "null",
	KindNumber:              "number",
	KindString:              "string",
	KindBoolean:             "boolean",
	KindDate:                "date",
	KindTime:                "time",
	KindDateTime:            "date and time",
	KindYearsMonthsDuration: "years and months duration",
	KindDaysTimeDuration:    "days and time duration",
	KindList:                "list",
	KindContext:             "context",
	KindRange:               "range",
	KindFunction:            "function",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is an immutable expression-language value. The set of
// implementations is closed: every Value is one of the types in this package.
type Value interface {
	Kind() Kind
	String() string
	feelValue()
}

// NullValue is the explicit absence of a value.
type NullValue struct{}

// Null is the single null value.
var Null Value = NullValue{}

func (NullValue) Kind() Kind                   { return KindNull }
func (NullValue) String() string               { return "null" }
func (NullValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }
func (NullValue) feelValue()                   {}

// IsNull reports whether v is nil or the null value.
func IsNull(v Value) bool {
	return v == nil || v.Kind() == KindNull
}

// decimalContext carries decimal128 semantics: 34 significant digits with
// half-even rounding.
var decimalContext = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(34)
	c.Rounding = apd.RoundHalfEven
	return c
}()

// Number is an arbitrary-precision decimal.
type Number struct {
	d *apd.Decimal
}

// NewNumber returns the number for an integer.
func NewNumber(i int64) Number {
	return Number{d: apd.New(i, 0)}
}

// NumberFromDecimal copies d into a new Number.
func NumberFromDecimal(d *apd.Decimal) Number {
	c := new(apd.Decimal)
	c.Set(d)
	return Number{d: c}
}

// NumberFromFloat converts a float64. NaN and infinities are rejected.
func NumberFromFloat(f float64) (Number, error) {
	d := new(apd.Decimal)
	if _, err := d.SetFloat64(f); err != nil {
		return Number{}, fmt.Errorf("invalid number %v: %w", f, err)
	}
	if d.Form != apd.Finite {
		return Number{}, fmt.Errorf("invalid number %v", f)
	}
	return Number{d: d}, nil
}

// ParseNumber parses a decimal literal such as "12", "-0.5" or ".25".
func ParseNumber(s string) (Number, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Number{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Number{}, fmt.Errorf("invalid number %q", s)
	}
	return Number{d: d}, nil
}

func (n Number) dec() *apd.Decimal {
	if n.d == nil {
		return apd.New(0, 0)
	}
	return n.d
}

// Decimal returns a copy of the underlying decimal.
func (n Number) Decimal() *apd.Decimal {
	c := new(apd.Decimal)
	c.Set(n.dec())
	return c
}

// Int64 returns the integer value of n when n is integral and fits.
func (n Number) Int64() (int64, bool) {
	i, err := n.dec().Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

// Float64 returns the closest float64 to n.
func (n Number) Float64() float64 {
	f, _ := n.dec().Float64()
	return f
}

// IsInteger reports whether n has no fractional part.
func (n Number) IsInteger() bool {
	var integ, frac apd.Decimal
	n.dec().Modf(&integ, &frac)
	return frac.IsZero()
}

// Sign returns -1, 0 or +1.
func (n Number) Sign() int {
	return n.dec().Sign()
}

func (Number) Kind() Kind { return KindNumber }

func (n Number) String() string {
	var r apd.Decimal
	r.Reduce(n.dec())
	if r.IsZero() {
		return "0"
	}
	return r.Text('f')
}

func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.String()), nil
}

func (Number) feelValue() {}

// String is a text value.
type String string

func (String) Kind() Kind       { return KindString }
func (s String) String() string { return strconv.Quote(string(s)) }
func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}
func (String) feelValue() {}

// Boolean is true or false.
type Boolean bool

func (Boolean) Kind() Kind { return KindBoolean }
func (b Boolean) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (b Boolean) MarshalJSON() ([]byte, error) { return []byte(b.String()), nil }
func (Boolean) feelValue()                     {}

// List is an ordered sequence of values.
type List struct {
	items []Value
}

// NewList builds a list. The slice is copied.
func NewList(items ...Value) *List {
	c := make([]Value, len(items))
	for i, it := range items {
		if it == nil {
			it = Null
		}
		c[i] = it
	}
	return &List{items: c}
}

// listOf wraps items without copying; callers must not retain the slice.
func listOf(items []Value) *List {
	return &List{items: items}
}

func (l *List) Len() int { return len(l.items) }

// At returns the element at a zero-based index.
func (l *List) At(i int) Value { return l.items[i] }

// Items returns a copy of the elements.
func (l *List) Items() []Value {
	c := make([]Value, len(l.items))
	copy(c, l.items)
	return c
}

func (*List) Kind() Kind { return KindList }

func (l *List) String() string {
	parts := make([]string, len(l.items))
	for i, it := range l.items {
		parts[i] = it.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (l *List) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.items)
}

func (*List) feelValue() {}

// Context is a record of named values. A key that was never set is absent,
// which is distinct from a key bound to Null.
type Context struct {
	keys []string
	vals map[string]Value
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{vals: map[string]Value{}}
}

// Get returns the value bound to key and whether the key is present.
func (c *Context) Get(key string) (Value, bool) {
	v, ok := c.vals[key]
	return v, ok
}

// Has reports whether key is present, even when bound to Null.
func (c *Context) Has(key string) bool {
	_, ok := c.vals[key]
	return ok
}

// Keys returns the keys in insertion order.
func (c *Context) Keys() []string {
	k := make([]string, len(c.keys))
	copy(k, c.keys)
	return k
}

func (c *Context) Len() int { return len(c.keys) }

// With returns a copy of c with key bound to v.
func (c *Context) With(key string, v Value) *Context {
	n := &Context{keys: make([]string, len(c.keys), len(c.keys)+1), vals: make(map[string]Value, len(c.vals)+1)}
	copy(n.keys, c.keys)
	for k, val := range c.vals {
		n.vals[k] = val
	}
	n.put(key, v)
	return n
}

func (c *Context) put(key string, v Value) {
	if v == nil {
		v = Null
	}
	if _, exists := c.vals[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.vals[key] = v
}

func (*Context) Kind() Kind { return KindContext }

func (c *Context) String() string {
	parts := make([]string, len(c.keys))
	for i, k := range c.keys {
		parts[i] = k + ": " + c.vals[k].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (c *Context) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		sb.Write(kb)
		sb.WriteByte(':')
		vb, err := json.Marshal(c.vals[k])
		if err != nil {
			return nil, err
		}
		sb.Write(vb)
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}

func (*Context) feelValue() {}

// ContextBuilder assembles a Context before it is published.
type ContextBuilder struct {
	c *Context
}

func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{c: NewContext()}
}

// Set binds key, replacing any earlier binding but keeping its position.
func (b *ContextBuilder) Set(key string, v Value) *ContextBuilder {
	b.c.put(key, v)
	return b
}

// Build returns the context; the builder must not be used afterwards.
func (b *ContextBuilder) Build() *Context {
	c := b.c
	b.c = NewContext()
	return c
}

// Range is an interval between two endpoints. A nil endpoint is unbounded.
type Range struct {
	Start         Value
	End           Value
	StartIncluded bool
	EndIncluded   bool
}

func (*Range) Kind() Kind { return KindRange }

func (r *Range) String() string {
	var sb strings.Builder
	if r.StartIncluded {
		sb.WriteByte('[')
	} else {
		sb.WriteByte('(')
	}
	if r.Start != nil {
		sb.WriteString(r.Start.String())
	}
	sb.WriteString("..")
	if r.End != nil {
		sb.WriteString(r.End.String())
	}
	if r.EndIncluded {
		sb.WriteByte(']')
	} else {
		sb.WriteByte(')')
	}
	return sb.String()
}

func (r *Range) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (*Range) feelValue() {}

// Contains reports whether v lies inside the range. The result is Null when
// v is not comparable with the endpoints.
func (r *Range) Contains(v Value) Value {
	if IsNull(v) {
		return Null
	}
	if r.Start != nil {
		c, ok := Compare(v, r.Start)
		if !ok {
			return Null
		}
		if c < 0 || (c == 0 && !r.StartIncluded) {
			return Boolean(false)
		}
	}
	if r.End != nil {
		c, ok := Compare(v, r.End)
		if !ok {
			return Null
		}
		if c > 0 || (c == 0 && !r.EndIncluded) {
			return Boolean(false)
		}
	}
	return Boolean(true)
}

// BuiltinFunc implements a function. Missing optional arguments are simply
// not present in args.
type BuiltinFunc func(args []Value) (Value, error)

// Function is a callable value: a built-in or a function literal.
type Function struct {
	Name     string
	Params   []string
	Required int
	Variadic bool
	Impl     BuiltinFunc
}

func (*Function) Kind() Kind { return KindFunction }

func (f *Function) String() string {
	name := f.Name
	if name == "" {
		name = "function"
	}
	return name + "(" + strings.Join(f.Params, ", ") + ")"
}

func (f *Function) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

func (*Function) feelValue() {}

// Call invokes f with positional arguments after checking arity.
func (f *Function) Call(args []Value) (Value, error) {
	if len(args) < f.Required {
		return nil, &EvaluationError{Msg: fmt.Sprintf("function %q expects at least %d argument(s), got %d", f.String(), f.Required, len(args))}
	}
	if !f.Variadic && len(args) > len(f.Params) {
		return nil, &EvaluationError{Msg: fmt.Sprintf("function %q expects at most %d argument(s), got %d", f.String(), len(f.Params), len(args))}
	}
	v, err := f.Impl(args)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return Null, nil
	}
	return v, nil
}
