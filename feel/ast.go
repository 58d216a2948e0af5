package feel

// Entry selects the grammar a text is parsed with.
type Entry int

const (
	// EntryExpression parses a single expression.
	EntryExpression Entry = iota
	// EntryUnaryTests parses a comma separated list of unary tests as used
	// in decision table input entries.
	EntryUnaryTests
)

func (e Entry) String() string {
	if e == EntryUnaryTests {
		return "unary-tests"
	}
	return "expression"
}

// Node is a parsed syntax tree node. Nodes are immutable once parsed and can
// be shared between goroutines.
type Node interface {
	Pos() Position
	node()
}

type nodeBase struct {
	P Position
}

func (n nodeBase) Pos() Position { return n.P }
func (nodeBase) node()           {}

// Literal holds a constant: number, string, boolean, null or a temporal
// literal resolved at parse time.
type Literal struct {
	nodeBase
	Value Value
}

// NameRef references a variable, a built-in function or a context entry.
type NameRef struct {
	nodeBase
	Name string
}

// CandidateRef is `?`, the value being tested by a unary test.
type CandidateRef struct {
	nodeBase
}

// UnaryOp is prefix negation.
type UnaryOp struct {
	nodeBase
	X Node
}

// BinaryOp covers arithmetic, comparison and boolean connectives.
type BinaryOp struct {
	nodeBase
	Op   string // "+", "-", "*", "/", "**", "=", "!=", "<", "<=", ">", ">=", "and", "or"
	L, R Node
}

// Between is `x between lo and hi`.
type Between struct {
	nodeBase
	X, Lo, Hi Node
}

// In is `x in tests`.
type In struct {
	nodeBase
	X     Node
	Tests *UnaryTests
}

// InstanceOf is `x instance of type`.
type InstanceOf struct {
	nodeBase
	X    Node
	Type string
}

// Path is `x.name`.
type Path struct {
	nodeBase
	X    Node
	Name string
}

// Filter is `x[filter]`.
type Filter struct {
	nodeBase
	X, Filter Node
}

// ListLit is `[a, b, ...]`.
type ListLit struct {
	nodeBase
	Items []Node
}

// ContextEntry is one `key: value` pair of a context literal.
type ContextEntry struct {
	Key   string
	Value Node
}

// ContextLit is `{key: value, ...}`. Later entries can reference earlier ones.
type ContextLit struct {
	nodeBase
	Entries []ContextEntry
}

// RangeLit is an interval such as `[1..10)`.
type RangeLit struct {
	nodeBase
	Start, End                 Node
	StartIncluded, EndIncluded bool
}

// NamedArg is one `name: value` argument.
type NamedArg struct {
	Name  string
	Value Node
}

// Call invokes a function with positional or named arguments.
type Call struct {
	nodeBase
	Fn    Node
	Args  []Node
	Named []NamedArg
}

// If is `if c then a else b`.
type If struct {
	nodeBase
	Cond, Then, Else Node
}

// Iterator binds Name over Domain, or over the integers Domain..End when End
// is set.
type Iterator struct {
	Name   string
	Domain Node
	End    Node
}

// For is `for x in xs, ... return e`.
type For struct {
	nodeBase
	Iterators []Iterator
	Return    Node
}

// Quantified is `some|every x in xs satisfies e`.
type Quantified struct {
	nodeBase
	Every     bool
	Iterators []Iterator
	Satisfies Node
}

// FunctionLit is `function(a, b) body`.
type FunctionLit struct {
	nodeBase
	Params []string
	Body   Node
}

// UnaryTest is a single test in a unary-tests list.
type UnaryTest interface {
	Node
	unaryTest()
}

// AnyTest is `-`; it matches every candidate.
type AnyTest struct {
	nodeBase
}

func (AnyTest) unaryTest() {}

// CompareTest is `< e`, `>= e`, `= e`, `!= e`, ...
type CompareTest struct {
	nodeBase
	Op       string
	Endpoint Node
}

func (CompareTest) unaryTest() {}

// ExprTest is a bare expression. Ranges test containment, lists test
// membership, boolean expressions over `?` are used as-is and anything else
// tests equality with the candidate.
type ExprTest struct {
	nodeBase
	Expr          Node
	UsesCandidate bool
}

func (ExprTest) unaryTest() {}

// UnaryTests is a disjunction of tests, optionally negated with `not(...)`.
type UnaryTests struct {
	nodeBase
	Tests   []UnaryTest
	Negated bool
}
