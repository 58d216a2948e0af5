package feel

import (
	"fmt"
	"strings"
)

// Position is a location in expression source text.
type Position struct {
	Offset int // byte offset, 0-based
	Line   int // 1-based
	Col    int // 1-based
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// SyntaxError reports text that does not conform to the grammar.
type SyntaxError struct {
	Source   string
	Pos      Position
	Found    string
	Expected []string
	Msg      string
}

func (e *SyntaxError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "syntax error at %s", e.Pos)
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Found != "" {
		fmt.Fprintf(&sb, ", found %s", e.Found)
	}
	if len(e.Expected) > 0 {
		fmt.Fprintf(&sb, ", expected %s", strings.Join(e.Expected, " or "))
	}
	if e.Source != "" {
		fmt.Fprintf(&sb, " in %q", e.Source)
	}
	return sb.String()
}

// EvaluationError reports an operation the language forbids, such as
// invoking something that is not a function.
type EvaluationError struct {
	Pos Position
	Msg string
	Err error
}

func (e *EvaluationError) Error() string {
	msg := "evaluation error"
	if e.Pos.Line > 0 {
		msg += " at " + e.Pos.String()
	}
	msg += ": " + e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EvaluationError) Unwrap() error { return e.Err }

func evalErrorf(pos Position, format string, args ...any) error {
	return &EvaluationError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
