package main

import (
	"time"

	"github.com/liamcoop/dmn/feel"
	"github.com/liamcoop/dmn/multitenantengine"
	"github.com/liamcoop/dmn/rules"
)

// CreateTenantRequest represents the request to create a new tenant
type CreateTenantRequest struct {
	ID        string                      `json:"id"`
	Functions multitenantengine.Functions `json:"functions,omitempty"`
}

// UpdateFunctionsRequest replaces every function of a tenant
type UpdateFunctionsRequest struct {
	Functions multitenantengine.Functions `json:"functions"`
}

// TenantResponse describes a tenant and the models it holds
type TenantResponse struct {
	ID        string                      `json:"id"`
	Functions multitenantengine.Functions `json:"functions"`
	Models    []string                    `json:"models"`
}

// EvaluateRequest represents a decision evaluation request. With an empty
// Decision every decision of the model is evaluated.
type EvaluateRequest struct {
	Decision string         `json:"decision,omitempty"`
	Facts    map[string]any `json:"facts"`
}

// DecisionResult is one evaluated decision
type DecisionResult struct {
	ID         string     `json:"id"`
	Decision   string     `json:"decision"`
	Output     feel.Value `json:"output"`
	Error      string     `json:"error,omitempty"`
	DurationMs float64    `json:"durationMs"`
}

// EvaluateResponse represents the response from evaluation
type EvaluateResponse struct {
	ModelID        string           `json:"modelId"`
	Results        []DecisionResult `json:"results"`
	EvaluationTime string           `json:"evaluationTime"`
}

// ExpressionRequest evaluates a standalone expression against a context
type ExpressionRequest struct {
	Expression string         `json:"expression"`
	Context    map[string]any `json:"context,omitempty"`
}

// ExpressionResponse carries the value of an expression
type ExpressionResponse struct {
	Result feel.Value `json:"result"`
}

// ModelSummary is the list view of a model
type ModelSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Decisions []string  `json:"decisions"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newDecisionResult(res *rules.EvaluationResult) DecisionResult {
	out := DecisionResult{
		ID:         res.ID,
		Decision:   res.Decision,
		Output:     res.Output,
		DurationMs: float64(res.Duration.Microseconds()) / 1000,
	}
	if out.Output == nil {
		out.Output = feel.Null
	}
	if res.Error != nil {
		out.Error = res.Error.Error()
	}
	return out
}

func newModelSummary(m *rules.DecisionModel) ModelSummary {
	return ModelSummary{
		ID:        m.ID,
		Name:      m.Name,
		Decisions: m.DecisionNames(),
		UpdatedAt: m.UpdatedAt,
	}
}
