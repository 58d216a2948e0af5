package rules

import (
	"fmt"
	"sort"

	"github.com/liamcoop/dmn/feel"
)

// ResolveHitPolicy combines the matching rules of table into the table
// result. Single-hit policies yield one output or Null; RULE ORDER, OUTPUT
// ORDER and COLLECT yield a list, or a scalar when COLLECT has an aggregation.
func ResolveHitPolicy(interp *feel.Interpreter, table *DecisionTable, matches []RuleResult) (feel.Value, error) {
	switch table.HitPolicy {
	case HitPolicyUnique, "":
		switch len(matches) {
		case 0:
			return feel.Null, nil
		case 1:
			return matches[0].Output, nil
		}
		return nil, &HitPolicyViolation{Decision: table.Name, Policy: HitPolicyUnique, Matches: len(matches)}

	case HitPolicyAny:
		if len(matches) == 0 {
			return feel.Null, nil
		}
		first := matches[0].Output
		for _, m := range matches[1:] {
			if !sameOutput(first, m.Output) {
				return nil, &HitPolicyViolation{Decision: table.Name, Policy: HitPolicyAny, Matches: len(matches)}
			}
		}
		return first, nil

	case HitPolicyFirst:
		if len(matches) == 0 {
			return feel.Null, nil
		}
		return matches[0].Output, nil

	case HitPolicyPriority:
		if len(matches) == 0 {
			return feel.Null, nil
		}
		ranked, err := rankByOutputValues(interp, table, matches)
		if err != nil {
			return nil, err
		}
		return ranked[0].Output, nil

	case HitPolicyRuleOrder:
		return outputList(matches), nil

	case HitPolicyOutputOrder:
		ranked, err := rankByOutputValues(interp, table, matches)
		if err != nil {
			return nil, err
		}
		return outputList(ranked), nil

	case HitPolicyCollect:
		if table.Aggregation == AggregationNone {
			return outputList(matches), nil
		}
		return aggregate(table.Aggregation, matches)
	}
	return nil, fmt.Errorf("table %q: unknown hit policy %q", table.Name, table.HitPolicy)
}

func outputList(matches []RuleResult) *feel.List {
	items := make([]feel.Value, len(matches))
	for i, m := range matches {
		items[i] = m.Output
	}
	return feel.NewList(items...)
}

func sameOutput(a, b feel.Value) bool {
	return feel.Equal(a, b) == feel.Boolean(true)
}

// rankByOutputValues orders matches by the position of their values in the
// output clauses' OutputValues lists, comparing clauses left to right. A
// value missing from a list ranks after every listed value. Ties keep table
// order.
func rankByOutputValues(interp *feel.Interpreter, table *DecisionTable, matches []RuleResult) ([]RuleResult, error) {
	priorities := make([][]feel.Value, len(table.Outputs))
	for j, clause := range table.Outputs {
		for _, text := range clause.OutputValues {
			v, err := interp.EvaluateExpression(text, nil)
			if err != nil {
				return nil, fmt.Errorf("table %q output %d value %q: %w", table.Name, j+1, text, err)
			}
			priorities[j] = append(priorities[j], v)
		}
	}

	ranks := make([][]int, len(matches))
	for i, m := range matches {
		ranks[i] = make([]int, len(table.Outputs))
		for j, allowed := range priorities {
			ranks[i][j] = len(allowed)
			v := m.Values[j]
			if v == nil {
				continue
			}
			for k, p := range allowed {
				if sameOutput(v, p) {
					ranks[i][j] = k
					break
				}
			}
		}
	}

	order := make([]int, len(matches))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := ranks[order[a]], ranks[order[b]]
		for j := range ra {
			if ra[j] != rb[j] {
				return ra[j] < rb[j]
			}
		}
		return false
	})

	out := make([]RuleResult, len(matches))
	for i, idx := range order {
		out[i] = matches[idx]
	}
	return out, nil
}

// aggregate reduces the single output clause of COLLECT matches. Absent and
// Null values are skipped.
func aggregate(agg Aggregation, matches []RuleResult) (feel.Value, error) {
	var vals []feel.Value
	for _, m := range matches {
		if len(m.Values) == 0 || m.Values[0] == nil || feel.IsNull(m.Values[0]) {
			continue
		}
		vals = append(vals, m.Values[0])
	}

	switch agg {
	case AggregationCount:
		return feel.NewNumber(int64(len(vals))), nil
	case AggregationSum:
		if len(vals) == 0 {
			return feel.Null, nil
		}
		acc := vals[0]
		for _, v := range vals[1:] {
			acc = feel.Add(acc, v)
		}
		return acc, nil
	case AggregationMin, AggregationMax:
		if len(vals) == 0 {
			return feel.Null, nil
		}
		sign := 1
		if agg == AggregationMin {
			sign = -1
		}
		best := vals[0]
		for _, v := range vals[1:] {
			c, ok := feel.Compare(v, best)
			if !ok {
				return feel.Null, nil
			}
			if c*sign > 0 {
				best = v
			}
		}
		return best, nil
	}
	return nil, fmt.Errorf("unknown aggregation %q", agg)
}
