package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/liamcoop/dmn/feel"
)

func contextOf(t *testing.T, facts map[string]any) *feel.Context {
	t.Helper()
	v, err := feel.FromGo(facts)
	if err != nil {
		t.Fatalf("FromGo failed: %v", err)
	}
	return v.(*feel.Context)
}

func normalized(t *testing.T, m *DecisionModel) *DecisionModel {
	t.Helper()
	if err := m.Normalize(); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	return m
}

// periodModel mirrors a scoring decision that depends on a reference period
// computed by another decision
func periodModel(t *testing.T) *DecisionModel {
	return normalized(t, &DecisionModel{
		ID: "period",
		Decisions: map[string]*Decision{
			"decisionDependent": {
				Table: &DecisionTable{
					HitPolicy: HitPolicyUnique,
					Inputs:    []InputClause{{Expression: "input.category"}},
					Outputs:   []OutputClause{{Name: "periodBegin"}, {Name: "periodEnd"}},
					Rules: []Rule{
						{InputEntries: []string{`"E"`}, OutputEntries: []string{
							`input.referenceDate`,
							`input.referenceDate + duration("P3M")`,
						}},
					},
				},
			},
			"decisionPrimary": {
				RequiredDecisions: []string{"decisionDependent"},
				Table: &DecisionTable{
					HitPolicy: HitPolicyUnique,
					Inputs:    []InputClause{{Expression: "input.testDate"}},
					Outputs:   []OutputClause{{Name: "output.score"}},
					Rules: []Rule{
						{InputEntries: []string{`< decisionDependent.periodBegin`}, OutputEntries: []string{"50"}},
						{InputEntries: []string{`[decisionDependent.periodBegin..decisionDependent.periodBegin + duration("P3M")]`}, OutputEntries: []string{"100"}},
						{InputEntries: []string{`> decisionDependent.periodEnd`}, OutputEntries: []string{"0"}},
					},
				},
			},
		},
	})
}

// TestEvaluateDecision_RequiredPeriod checks calendar arithmetic across a
// required decision
func TestEvaluateDecision_RequiredPeriod(t *testing.T) {
	tests := []struct {
		name      string
		reference string
		test      string
		wantScore int64
	}{
		{"before period", "2018-01-04T00:00:00Z", "2018-01-03T00:00:00Z", 50},
		{"last instant of period", "2018-01-04T10:00:00Z", "2018-04-04T10:00:00Z", 100},
		{"after period", "2018-01-04T10:00:00Z", "2018-04-05T00:00:00Z", 0},
	}

	model := periodModel(t)
	interp := feel.NewInterpreter()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, _ := time.Parse(time.RFC3339, tt.reference)
			test, _ := time.Parse(time.RFC3339, tt.test)
			ctx := contextOf(t, map[string]any{
				"input": map[string]any{"category": "E", "referenceDate": ref, "testDate": test},
			})

			got, err := EvaluateDecision(interp, "decisionPrimary", model, ctx)
			if err != nil {
				t.Fatalf("EvaluateDecision failed: %v", err)
			}
			want := map[string]any{"output": map[string]any{"score": tt.wantScore}}
			if diff := cmp.Diff(want, feel.ToGo(got)); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestEvaluateDecision_DependentPeriod checks the period record itself
func TestEvaluateDecision_DependentPeriod(t *testing.T) {
	ref := time.Date(2018, 1, 4, 0, 0, 0, 0, time.UTC)
	ctx := contextOf(t, map[string]any{"input": map[string]any{"category": "E", "referenceDate": ref}})

	got, err := EvaluateDecision(feel.NewInterpreter(), "decisionDependent", periodModel(t), ctx)
	if err != nil {
		t.Fatalf("EvaluateDecision failed: %v", err)
	}
	rec, ok := got.(*feel.Context)
	if !ok {
		t.Fatalf("expected a record, got %T", got)
	}
	begin, _ := rec.Get("periodBegin")
	end, _ := rec.Get("periodEnd")
	wantEnd := feel.NewDateTime(time.Date(2018, 4, 4, 0, 0, 0, 0, time.UTC), true)
	if eq := feel.Equal(begin, feel.NewDateTime(ref, true)); eq != feel.Boolean(true) {
		t.Errorf("expected periodBegin %v, got %v", ref, begin)
	}
	if eq := feel.Equal(end, wantEnd); eq != feel.Boolean(true) {
		t.Errorf("expected periodEnd %v, got %v", wantEnd, end)
	}
}

// TestEvaluateDecision_RequiredBeforeDependent verifies a dependent decision
// reads the output of the decision it requires
func TestEvaluateDecision_RequiredBeforeDependent(t *testing.T) {
	model := normalized(t, &DecisionModel{
		ID: "ab",
		Decisions: map[string]*Decision{
			"A": {Expression: `{output: x * 2}`},
			"B": {RequiredDecisions: []string{"A"}, Expression: `A.output + 1`},
		},
	})

	got, err := EvaluateDecision(feel.NewInterpreter(), "B", model, contextOf(t, map[string]any{"x": 5}))
	if err != nil {
		t.Fatalf("EvaluateDecision failed: %v", err)
	}
	if diff := cmp.Diff(any(int64(11)), feel.ToGo(got)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

// TestEvaluateDecision_SiblingsInDeclarationOrder verifies the second
// required sibling can see the first
func TestEvaluateDecision_SiblingsInDeclarationOrder(t *testing.T) {
	model := normalized(t, &DecisionModel{
		ID: "siblings",
		Decisions: map[string]*Decision{
			"first":  {Expression: `1`},
			"second": {Expression: `first + 1`},
			"top":    {RequiredDecisions: []string{"first", "second"}, Expression: `[first, second]`},
		},
	})

	var order []string
	observe := func(decision string, _ time.Duration, _ error) { order = append(order, decision) }

	got, err := EvaluateDecision(feel.NewInterpreter(), "top", model, feel.NewContext(), WithDecisionObserver(observe))
	if err != nil {
		t.Fatalf("EvaluateDecision failed: %v", err)
	}
	if diff := cmp.Diff([]any{int64(1), int64(2)}, feel.ToGo(got)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"first", "second", "top"}, order); diff != "" {
		t.Errorf("evaluation order mismatch (-want +got):\n%s", diff)
	}
}

// TestEvaluateDecision_DiamondEvaluatedOnce verifies a shared requirement is
// evaluated a single time per call
func TestEvaluateDecision_DiamondEvaluatedOnce(t *testing.T) {
	model := normalized(t, &DecisionModel{
		ID: "diamond",
		Decisions: map[string]*Decision{
			"base":  {Expression: `10`},
			"left":  {RequiredDecisions: []string{"base"}, Expression: `base + 1`},
			"right": {RequiredDecisions: []string{"base"}, Expression: `base + 2`},
			"top":   {RequiredDecisions: []string{"left", "right"}, Expression: `left + right`},
		},
	})

	counts := map[string]int{}
	observe := func(decision string, _ time.Duration, _ error) { counts[decision]++ }

	got, err := EvaluateDecision(feel.NewInterpreter(), "top", model, feel.NewContext(), WithDecisionObserver(observe))
	if err != nil {
		t.Fatalf("EvaluateDecision failed: %v", err)
	}
	if diff := cmp.Diff(any(int64(23)), feel.ToGo(got)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if counts["base"] != 1 {
		t.Errorf("expected base to be evaluated once, got %d", counts["base"])
	}
}

// TestEvaluateDecision_Errors covers unknown decisions and cycles
func TestEvaluateDecision_Errors(t *testing.T) {
	model := &DecisionModel{
		ID: "broken",
		Decisions: map[string]*Decision{
			"a":       {Name: "a", RequiredDecisions: []string{"b"}, Expression: `1`},
			"b":       {Name: "b", RequiredDecisions: []string{"a"}, Expression: `2`},
			"dangles": {Name: "dangles", RequiredDecisions: []string{"ghost"}, Expression: `3`},
		},
	}
	interp := feel.NewInterpreter()

	t.Run("unknown decision", func(t *testing.T) {
		_, err := EvaluateDecision(interp, "missing", model, feel.NewContext())
		var ue *UnknownDecisionError
		if !errors.As(err, &ue) {
			t.Fatalf("expected UnknownDecisionError, got %v", err)
		}
		if ue.Name != "missing" || ue.RequiredBy != "" {
			t.Errorf("unexpected error fields: %+v", ue)
		}
	})

	t.Run("unknown requirement", func(t *testing.T) {
		_, err := EvaluateDecision(interp, "dangles", model, feel.NewContext())
		var ue *UnknownDecisionError
		if !errors.As(err, &ue) {
			t.Fatalf("expected UnknownDecisionError, got %v", err)
		}
		if ue.Name != "ghost" || ue.RequiredBy != "dangles" {
			t.Errorf("unexpected error fields: %+v", ue)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := EvaluateDecision(interp, "a", model, feel.NewContext())
		var ge *GraphError
		if !errors.As(err, &ge) {
			t.Fatalf("expected GraphError, got %v", err)
		}
		if diff := cmp.Diff([]string{"a", "b", "a"}, ge.Cycle); diff != "" {
			t.Errorf("cycle mismatch (-want +got):\n%s", diff)
		}
	})
}

// TestEvaluateDecision_HitPolicyViolationPropagates verifies the violation
// from a required table reaches the caller unwrapped
func TestEvaluateDecision_HitPolicyViolationPropagates(t *testing.T) {
	model := normalized(t, &DecisionModel{
		ID: "violation",
		Decisions: map[string]*Decision{
			"inner": {Table: &DecisionTable{
				Inputs:  []InputClause{{Expression: "input.category"}},
				Outputs: []OutputClause{{Name: "message"}},
				Rules:   []Rule{row(`"A"`, `"one"`), row(`"A"`, `"two"`)},
			}},
			"outer": {RequiredDecisions: []string{"inner"}, Expression: `inner.message`},
		},
	})

	_, err := EvaluateDecision(feel.NewInterpreter(), "outer", model,
		contextOf(t, map[string]any{"input": map[string]any{"category": "A"}}))
	var hp *HitPolicyViolation
	if !errors.As(err, &hp) {
		t.Fatalf("expected HitPolicyViolation, got %v", err)
	}
	if hp.Decision != "inner" {
		t.Errorf("expected violation in inner, got %q", hp.Decision)
	}
}

// TestEvaluateDecision_ViolationNamesUnnormalizedDecision verifies a model
// built in code without Normalize still names the decision in a violation
func TestEvaluateDecision_ViolationNamesUnnormalizedDecision(t *testing.T) {
	model := &DecisionModel{
		ID: "raw",
		Decisions: map[string]*Decision{
			"category check": {Table: &DecisionTable{
				HitPolicy: HitPolicyUnique,
				Inputs:    []InputClause{{Expression: "category"}},
				Outputs:   []OutputClause{{Name: "message"}},
				Rules:     []Rule{row(`"A"`, `"one"`), row(`"A"`, `"two"`)},
			}},
		},
	}

	_, err := EvaluateDecision(feel.NewInterpreter(), "category check", model,
		contextOf(t, map[string]any{"category": "A"}))
	var hp *HitPolicyViolation
	if !errors.As(err, &hp) {
		t.Fatalf("expected HitPolicyViolation, got %v", err)
	}
	want := `Decision "category check" is not unique but hit policy is UNIQUE.`
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
	if model.Decisions["category check"].Table.Name != "" {
		t.Error("evaluation should not modify the model")
	}
}

// TestEvaluateDecision_ExpressionErrorIsWrapped verifies evaluation failures
// carry the decision name
func TestEvaluateDecision_ExpressionErrorIsWrapped(t *testing.T) {
	model := normalized(t, &DecisionModel{
		ID:        "bad",
		Decisions: map[string]*Decision{"bad": {Expression: `1 +`}},
	})

	_, err := EvaluateDecision(feel.NewInterpreter(), "bad", model, feel.NewContext())
	var de *DecisionError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecisionError, got %v", err)
	}
	if de.Decision != "bad" {
		t.Errorf("expected decision bad, got %q", de.Decision)
	}
	var se *feel.SyntaxError
	if !errors.As(err, &se) {
		t.Errorf("expected wrapped SyntaxError, got %v", err)
	}
}

// TestEvaluateDecision_CEL verifies cel decisions read FEEL results
func TestEvaluateDecision_CEL(t *testing.T) {
	model := normalized(t, &DecisionModel{
		ID: "cel",
		Decisions: map[string]*Decision{
			"base": {Expression: `{score: 21}`},
			"doubled": {
				RequiredDecisions:  []string{"base"},
				Expression:         `base.score * 2`,
				ExpressionLanguage: LanguageCEL,
			},
		},
	})
	interp := feel.NewInterpreter()

	got, err := EvaluateDecision(interp, "doubled", model, feel.NewContext(), WithCEL(NewCELEvaluator()))
	if err != nil {
		t.Fatalf("EvaluateDecision failed: %v", err)
	}
	if diff := cmp.Diff(any(int64(42)), feel.ToGo(got)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	if _, err := EvaluateDecision(interp, "doubled", model, feel.NewContext()); err == nil {
		t.Error("expected an error without a CEL evaluator")
	}
}
