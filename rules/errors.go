package rules

import (
	"fmt"
	"strings"
)

// HitPolicyViolation is returned when the matching rules of a table break
// its hit policy
type HitPolicyViolation struct {
	Decision string
	Policy   HitPolicy
	Matches  int
}

func (e *HitPolicyViolation) Error() string {
	if e.Policy == HitPolicyAny {
		return fmt.Sprintf("Decision %q has %d matching rules with different outputs but hit policy is ANY.", e.Decision, e.Matches)
	}
	return fmt.Sprintf("Decision %q is not unique but hit policy is %s.", e.Decision, e.Policy)
}

// UnknownDecisionError is returned when a decision name is not part of the
// model
type UnknownDecisionError struct {
	Name string
	// RequiredBy is set when the name came from a required-decision edge
	RequiredBy string
}

func (e *UnknownDecisionError) Error() string {
	if e.RequiredBy != "" {
		return fmt.Sprintf("decision %q required by %q is not defined", e.Name, e.RequiredBy)
	}
	return fmt.Sprintf("decision %q is not defined", e.Name)
}

// GraphError is returned when required decisions form a cycle. Cycle lists
// the decisions on the loop, ending with the first one again.
type GraphError struct {
	Cycle []string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("decision graph has a cycle: %s", strings.Join(e.Cycle, " -> "))
}

func newGraphError(path []string, repeated string) *GraphError {
	start := 0
	for i, n := range path {
		if n == repeated {
			start = i
			break
		}
	}
	cycle := append(append([]string{}, path[start:]...), repeated)
	return &GraphError{Cycle: cycle}
}

// DecisionError wraps a failure with the decision that produced it
type DecisionError struct {
	Decision string
	Err      error
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("evaluating decision %q: %v", e.Decision, e.Err)
}

func (e *DecisionError) Unwrap() error { return e.Err }
