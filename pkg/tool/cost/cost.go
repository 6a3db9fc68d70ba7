package cost

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/tool"
	"github.com/urfave/cli/v3"
)

type estimateCostInput struct {
	Country       string `json:"country"`
	HouseholdSize int    `json:"household_size"`
}

// Monthly single-person baseline in EUR, sourced from the network's
// cost calculator tables
var baseline = map[string]int{
	"portugal":       1450,
	"spain":          1550,
	"italy":          1600,
	"greece":         1300,
	"france":         2100,
	"germany":        2000,
	"netherlands":    2300,
	"czech republic": 1350,
	"poland":         1200,
	"mexico":         1100,
	"thailand":       1000,
	"japan":          1900,
}

// Each additional household member adds roughly 60% of the baseline
const perPersonFactor = 0.6

type cost struct{}

// New creates the cost estimation tool
func New() *cost {
	return &cost{}
}

// Flags returns CLI flags for this tool
func (x *cost) Flags() []cli.Flag {
	return nil
}

// Init initializes the tool
func (x *cost) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return true, nil
}

// Prompt returns additional information to be added to the system prompt
func (x *cost) Prompt(ctx context.Context) string {
	return `Use estimate_cost for rough monthly cost-of-living figures per country. Present the result as an estimate, not a guarantee.`
}

// Specs returns the function definitions for provider function calling
func (x *cost) Specs() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "estimate_cost",
				Description: "Estimate the monthly cost of living in a destination country in EUR",
				Parameters: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"country": {
							Type:        "string",
							Description: "Destination country name, e.g. \"Portugal\"",
						},
						"household_size": {
							Type:        "integer",
							Description: "Number of people relocating, default 1",
						},
					},
					Required: []string{"country"},
				},
			},
		},
	}
}

// Execute runs the tool with the given arguments
func (x *cost) Execute(ctx context.Context, userID model.UserID, name string, args map[string]any) (any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal arguments")
	}

	var input estimateCostInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, goerr.Wrap(err, "failed to parse input parameters")
	}

	base, ok := baseline[strings.ToLower(strings.TrimSpace(input.Country))]
	if !ok {
		return map[string]any{
			"error": "no cost data for country: " + input.Country,
		}, nil
	}

	size := input.HouseholdSize
	if size <= 0 {
		size = 1
	}

	estimate := float64(base) * (1 + perPersonFactor*float64(size-1))

	return map[string]any{
		"country":            input.Country,
		"household_size":     size,
		"monthly_cost_eur":   int(estimate),
		"single_person_base": base,
	}, nil
}
