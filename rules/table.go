package rules

import (
	"fmt"
	"strings"

	"github.com/liamcoop/dmn/feel"
)

// RuleResult is the output of one matching rule
type RuleResult struct {
	// Index is the 0-based position of the rule in the table
	Index int
	Rule  *Rule
	// Output is a record, or a bare value for a single unnamed output clause
	Output feel.Value
	// Values holds one entry per output clause; nil means the entry was empty
	Values []feel.Value
}

// EvaluateTable matches every rule of table against env and combines the
// outputs of the matching rules according to the table's hit policy.
func EvaluateTable(interp *feel.Interpreter, table *DecisionTable, env *feel.Env) (feel.Value, error) {
	matches, err := MatchRules(interp, table, env)
	if err != nil {
		return nil, err
	}
	return ResolveHitPolicy(interp, table, matches)
}

// MatchRules returns the outputs of the matching rules in table order
func MatchRules(interp *feel.Interpreter, table *DecisionTable, env *feel.Env) ([]RuleResult, error) {
	inputs := newInputValues(interp, table, env)

	var matches []RuleResult
	for i := range table.Rules {
		rule := &table.Rules[i]
		ok, err := matchRule(interp, table, rule, i, inputs, env)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		res, err := ruleOutput(interp, table, rule, i, env)
		if err != nil {
			return nil, err
		}
		matches = append(matches, res)
	}
	return matches, nil
}

// inputValues evaluates input clause expressions on first use and keeps the
// result for the rest of the table evaluation
type inputValues struct {
	interp *feel.Interpreter
	table  *DecisionTable
	env    *feel.Env
	vals   []feel.Value
}

func newInputValues(interp *feel.Interpreter, table *DecisionTable, env *feel.Env) *inputValues {
	return &inputValues{
		interp: interp,
		table:  table,
		env:    env,
		vals:   make([]feel.Value, len(table.Inputs)),
	}
}

func (iv *inputValues) get(i int) (feel.Value, error) {
	if v := iv.vals[i]; v != nil {
		return v, nil
	}
	v, err := iv.interp.EvaluateExpression(iv.table.Inputs[i].Expression, iv.env)
	if err != nil {
		return nil, fmt.Errorf("table %q input %d: %w", iv.table.Name, i+1, err)
	}
	iv.vals[i] = v
	return v, nil
}

// isAnyEntry reports whether an input entry matches every candidate
func isAnyEntry(entry string) bool {
	e := strings.TrimSpace(entry)
	return e == "" || e == "-"
}

func matchRule(interp *feel.Interpreter, table *DecisionTable, rule *Rule, idx int, inputs *inputValues, env *feel.Env) (bool, error) {
	for j, entry := range rule.InputEntries {
		if isAnyEntry(entry) {
			continue
		}
		tests, err := interp.Parse(entry, feel.EntryUnaryTests)
		if err != nil {
			return false, fmt.Errorf("table %q rule %d input entry %d: %w", table.Name, idx+1, j+1, err)
		}
		candidate, err := inputs.get(j)
		if err != nil {
			return false, err
		}
		ok, err := interp.MatchesUnaryTests(tests, candidate, env)
		if err != nil {
			return false, fmt.Errorf("table %q rule %d input entry %d: %w", table.Name, idx+1, j+1, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func ruleOutput(interp *feel.Interpreter, table *DecisionTable, rule *Rule, idx int, env *feel.Env) (RuleResult, error) {
	res := RuleResult{Index: idx, Rule: rule, Values: make([]feel.Value, len(rule.OutputEntries))}
	for j, entry := range rule.OutputEntries {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		v, err := interp.EvaluateExpression(entry, env)
		if err != nil {
			return res, fmt.Errorf("table %q rule %d output entry %d: %w", table.Name, idx+1, j+1, err)
		}
		res.Values[j] = v
	}
	res.Output = buildOutput(table.Outputs, res.Values)
	return res, nil
}

// singleValueOutput reports whether rows produce bare values instead of records
func singleValueOutput(outputs []OutputClause) bool {
	return len(outputs) == 1 && outputs[0].Name == ""
}

// buildOutput assembles the output of one rule. Dotted names build nested
// records; absent values leave their key out.
func buildOutput(outputs []OutputClause, values []feel.Value) feel.Value {
	if singleValueOutput(outputs) {
		if values[0] == nil {
			return feel.Null
		}
		return values[0]
	}
	rec := feel.NewContext()
	for j, clause := range outputs {
		if values[j] == nil {
			continue
		}
		rec = setPath(rec, strings.Split(clause.Name, "."), values[j])
	}
	return rec
}

func setPath(c *feel.Context, path []string, v feel.Value) *feel.Context {
	if len(path) == 1 {
		return c.With(path[0], v)
	}
	child := feel.NewContext()
	if existing, ok := c.Get(path[0]); ok {
		if nested, ok := existing.(*feel.Context); ok {
			child = nested
		}
	}
	return c.With(path[0], setPath(child, path[1:], v))
}
