package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/liamcoop/dmn/feel"
)

// HitPolicy decides how the outputs of matching rules are combined
type HitPolicy string

const (
	HitPolicyUnique      HitPolicy = "UNIQUE"
	HitPolicyAny         HitPolicy = "ANY"
	HitPolicyPriority    HitPolicy = "PRIORITY"
	HitPolicyFirst       HitPolicy = "FIRST"
	HitPolicyRuleOrder   HitPolicy = "RULE ORDER"
	HitPolicyOutputOrder HitPolicy = "OUTPUT ORDER"
	HitPolicyCollect     HitPolicy = "COLLECT"
)

// Aggregation reduces COLLECT results to a single value
type Aggregation string

const (
	AggregationNone  Aggregation = ""
	AggregationSum   Aggregation = "SUM"
	AggregationMin   Aggregation = "MIN"
	AggregationMax   Aggregation = "MAX"
	AggregationCount Aggregation = "COUNT"
)

// ParseHitPolicy accepts full names ("RULE ORDER", "COLLECT SUM") and the
// single-letter forms used in table headers ("U", "C+", "C#").
func ParseHitPolicy(s string) (HitPolicy, Aggregation, error) {
	s = strings.ToUpper(strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " "))
	switch s {
	case "", "U", "UNIQUE":
		return HitPolicyUnique, AggregationNone, nil
	case "A", "ANY":
		return HitPolicyAny, AggregationNone, nil
	case "P", "PRIORITY":
		return HitPolicyPriority, AggregationNone, nil
	case "F", "FIRST":
		return HitPolicyFirst, AggregationNone, nil
	case "R", "RULE ORDER":
		return HitPolicyRuleOrder, AggregationNone, nil
	case "O", "OUTPUT ORDER":
		return HitPolicyOutputOrder, AggregationNone, nil
	case "C", "COLLECT":
		return HitPolicyCollect, AggregationNone, nil
	case "C+", "COLLECT SUM":
		return HitPolicyCollect, AggregationSum, nil
	case "C<", "COLLECT MIN":
		return HitPolicyCollect, AggregationMin, nil
	case "C>", "COLLECT MAX":
		return HitPolicyCollect, AggregationMax, nil
	case "C#", "COLLECT COUNT":
		return HitPolicyCollect, AggregationCount, nil
	}
	return "", "", fmt.Errorf("unknown hit policy %q", s)
}

// InputClause is one input column of a decision table
type InputClause struct {
	Label      string `json:"label,omitempty" yaml:"label,omitempty"`
	Expression string `json:"expression" yaml:"expression"`
	TypeRef    string `json:"typeRef,omitempty" yaml:"typeRef,omitempty"`
}

// OutputClause is one output column of a decision table. Dotted names such
// as "result.score" build nested records. OutputValues lists the allowed
// values in priority order for PRIORITY and OUTPUT ORDER tables.
type OutputClause struct {
	Name         string   `json:"name,omitempty" yaml:"name,omitempty"`
	Label        string   `json:"label,omitempty" yaml:"label,omitempty"`
	TypeRef      string   `json:"typeRef,omitempty" yaml:"typeRef,omitempty"`
	OutputValues []string `json:"outputValues,omitempty" yaml:"outputValues,omitempty"`
}

// Rule is one row of a decision table. An input entry of "" or "-" matches
// anything; an empty output entry leaves that output absent.
type Rule struct {
	ID            string   `json:"id,omitempty" yaml:"id,omitempty"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	InputEntries  []string `json:"inputEntries" yaml:"inputEntries"`
	OutputEntries []string `json:"outputEntries" yaml:"outputEntries"`
}

// DecisionTable is an ordered set of rules over input and output clauses
type DecisionTable struct {
	// Name identifies the table in errors; it defaults to the decision name
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	HitPolicy   HitPolicy      `json:"hitPolicy" yaml:"hitPolicy"`
	Aggregation Aggregation    `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
	Inputs      []InputClause  `json:"inputs" yaml:"inputs"`
	Outputs     []OutputClause `json:"outputs" yaml:"outputs"`
	Rules       []Rule         `json:"rules" yaml:"rules"`
}

// Expression languages a decision can be written in
const (
	LanguageFEEL = "feel"
	LanguageCEL  = "cel"
)

// Decision is a named unit of logic backed by a table or a literal
// expression. RequiredDecisions are evaluated first and bound under their
// own names.
type Decision struct {
	Name               string         `json:"name" yaml:"name"`
	Description        string         `json:"description,omitempty" yaml:"description,omitempty"`
	RequiredDecisions  []string       `json:"requiredDecisions,omitempty" yaml:"requiredDecisions,omitempty"`
	Table              *DecisionTable `json:"table,omitempty" yaml:"table,omitempty"`
	Expression         string         `json:"expression,omitempty" yaml:"expression,omitempty"`
	ExpressionLanguage string         `json:"expressionLanguage,omitempty" yaml:"expressionLanguage,omitempty"`
}

// DecisionModel is a set of decisions. It is read-only once added to an
// Engine.
type DecisionModel struct {
	ID        string               `json:"id" yaml:"id"`
	Name      string               `json:"name,omitempty" yaml:"name,omitempty"`
	Decisions map[string]*Decision `json:"decisions" yaml:"decisions"`
	CreatedAt time.Time            `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time            `json:"updatedAt" yaml:"-"`
}

// Normalize fills defaults: decision names from map keys, table names from
// decision names and canonical hit policies. Fields already in canonical
// form are left untouched, so normalizing a model that is being evaluated
// does not write to it.
func (m *DecisionModel) Normalize() error {
	for key, d := range m.Decisions {
		if d == nil {
			return fmt.Errorf("decision %q is empty", key)
		}
		if d.Name == "" {
			d.Name = key
		}
		if d.Name != key {
			return fmt.Errorf("decision key %q does not match its name %q", key, d.Name)
		}
		lang := strings.ToLower(d.ExpressionLanguage)
		if lang == "" {
			lang = LanguageFEEL
		}
		if d.ExpressionLanguage != lang {
			d.ExpressionLanguage = lang
		}
		if t := d.Table; t != nil {
			if t.Name == "" {
				t.Name = d.Name
			}
			policy, agg, err := ParseHitPolicy(string(t.HitPolicy))
			if err != nil {
				return fmt.Errorf("decision %q: %w", key, err)
			}
			if agg == AggregationNone {
				agg = Aggregation(strings.ToUpper(string(t.Aggregation)))
			}
			if t.HitPolicy != policy {
				t.HitPolicy = policy
			}
			if t.Aggregation != agg {
				t.Aggregation = agg
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the model that shares no decisions, tables or
// slices with m.
func (m *DecisionModel) Clone() *DecisionModel {
	cp := *m
	cp.Decisions = make(map[string]*Decision, len(m.Decisions))
	for key, d := range m.Decisions {
		if d == nil {
			cp.Decisions[key] = nil
			continue
		}
		dc := *d
		dc.RequiredDecisions = append([]string(nil), d.RequiredDecisions...)
		if d.Table != nil {
			dc.Table = d.Table.clone()
		}
		cp.Decisions[key] = &dc
	}
	return &cp
}

func (t *DecisionTable) clone() *DecisionTable {
	cp := *t
	cp.Inputs = append([]InputClause(nil), t.Inputs...)
	cp.Outputs = make([]OutputClause, len(t.Outputs))
	for i, o := range t.Outputs {
		o.OutputValues = append([]string(nil), o.OutputValues...)
		cp.Outputs[i] = o
	}
	cp.Rules = make([]Rule, len(t.Rules))
	for i, r := range t.Rules {
		r.InputEntries = append([]string(nil), r.InputEntries...)
		r.OutputEntries = append([]string(nil), r.OutputEntries...)
		cp.Rules[i] = r
	}
	return &cp
}

// Validate checks the structure of the model: entry counts, hit policy
// settings, required decision references and acyclicity.
func (m *DecisionModel) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("model ID is required")
	}
	if len(m.Decisions) == 0 {
		return fmt.Errorf("model %q has no decisions", m.ID)
	}
	for name, d := range m.Decisions {
		if d.Table != nil && d.Expression != "" {
			return fmt.Errorf("decision %q has both a table and an expression", name)
		}
		switch d.ExpressionLanguage {
		case "", LanguageFEEL, LanguageCEL:
		default:
			return fmt.Errorf("decision %q: unsupported expression language %q", name, d.ExpressionLanguage)
		}
		for _, req := range d.RequiredDecisions {
			if _, ok := m.Decisions[req]; !ok {
				return &UnknownDecisionError{Name: req, RequiredBy: name}
			}
		}
		if d.Table != nil {
			if err := d.Table.validate(); err != nil {
				return fmt.Errorf("decision %q: %w", name, err)
			}
		}
	}
	return m.checkCycles()
}

func (t *DecisionTable) validate() error {
	switch t.HitPolicy {
	case HitPolicyUnique, HitPolicyAny, HitPolicyPriority, HitPolicyFirst,
		HitPolicyRuleOrder, HitPolicyOutputOrder, HitPolicyCollect:
	default:
		return fmt.Errorf("unknown hit policy %q", t.HitPolicy)
	}
	switch t.Aggregation {
	case AggregationNone:
	case AggregationSum, AggregationMin, AggregationMax, AggregationCount:
		if t.HitPolicy != HitPolicyCollect {
			return fmt.Errorf("aggregation %s requires hit policy COLLECT", t.Aggregation)
		}
		if len(t.Outputs) != 1 {
			return fmt.Errorf("aggregation %s requires exactly one output clause", t.Aggregation)
		}
	default:
		return fmt.Errorf("unknown aggregation %q", t.Aggregation)
	}
	if len(t.Outputs) == 0 {
		return fmt.Errorf("table has no output clauses")
	}
	if len(t.Outputs) > 1 {
		for i, o := range t.Outputs {
			if o.Name == "" {
				return fmt.Errorf("output clause %d needs a name when a table has several outputs", i+1)
			}
		}
	}
	for i, in := range t.Inputs {
		if strings.TrimSpace(in.Expression) == "" {
			return fmt.Errorf("input clause %d has no expression", i+1)
		}
	}
	for i, r := range t.Rules {
		if len(r.InputEntries) != len(t.Inputs) {
			return fmt.Errorf("rule %d has %d input entries, want %d", i+1, len(r.InputEntries), len(t.Inputs))
		}
		if len(r.OutputEntries) != len(t.Outputs) {
			return fmt.Errorf("rule %d has %d output entries, want %d", i+1, len(r.OutputEntries), len(t.Outputs))
		}
	}
	return nil
}

// checkCycles walks the required-decision graph with the same visit states
// the resolver uses.
func (m *DecisionModel) checkCycles() error {
	states := make(map[string]visitState, len(m.Decisions))
	var path []string
	var visit func(name string) error
	visit = func(name string) error {
		switch states[name] {
		case resolved:
			return nil
		case resolving:
			return newGraphError(path, name)
		}
		states[name] = resolving
		path = append(path, name)
		for _, req := range m.Decisions[name].RequiredDecisions {
			if err := visit(req); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		states[name] = resolved
		return nil
	}
	for _, name := range m.DecisionNames() {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// DecisionNames returns the decision names in sorted order.
func (m *DecisionModel) DecisionNames() []string {
	names := make([]string, 0, len(m.Decisions))
	for n := range m.Decisions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EvaluationResult contains the outcome of evaluating a decision
type EvaluationResult struct {
	ID          string         `json:"id"`
	ModelID     string         `json:"modelId"`
	Decision    string         `json:"decision"`
	Input       map[string]any `json:"input,omitempty"`
	Output      feel.Value     `json:"output"`
	Duration    time.Duration  `json:"duration"`
	EvaluatedAt time.Time      `json:"evaluatedAt"`
	Error       error          `json:"-"`
}
