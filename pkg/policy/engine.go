package policy

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/quest-labs/relo/pkg/model"
)

// FactInput is the evaluation input for one candidate fact
type FactInput struct {
	FactType   model.FactType `json:"fact_type"`
	Value      string         `json:"value"`
	Confidence float64        `json:"confidence"`
	IsChange   bool           `json:"is_change"`
	OldValue   string         `json:"old_value"`
}

// Decision is the policy verdict for a candidate fact
type Decision struct {
	RequireConfirmation bool
	Reasons             []string
}

// Engine evaluates fact commit decisions against Rego policy
type Engine struct {
	query *rego.PreparedEvalQuery
}

// New creates an Engine from the Rego files in policyDir. An empty dir
// falls back to the embedded default policy.
func New(ctx context.Context, policyDir string) (*Engine, error) {
	query, err := loadQuery(ctx, policyDir)
	if err != nil {
		return nil, err
	}

	return &Engine{query: query}, nil
}

// Evaluate runs the facts policy against one candidate fact
func (e *Engine) Evaluate(ctx context.Context, input *FactInput) (*Decision, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate facts policy", goerr.V("fact_type", input.FactType))
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return &Decision{}, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("invalid facts policy result")
	}

	decision := &Decision{}
	if v, ok := data["require_confirmation"].(bool); ok {
		decision.RequireConfirmation = v
	}

	if raw, ok := data["reasons"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				decision.Reasons = append(decision.Reasons, s)
			}
		}
	}

	return decision, nil
}
