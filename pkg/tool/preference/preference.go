package preference

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/repository"
	"github.com/quest-labs/relo/pkg/tool"
	"github.com/quest-labs/relo/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type savePreferenceInput struct {
	FactType  string `json:"fact_type"`
	FactValue string `json:"fact_value"`
}

// Name is the function name exposed to the completion provider
const Name = "save_preference"

type preference struct {
	repo repository.Repository
}

// New creates the preference-saving tool
func New() *preference {
	return &preference{}
}

// Flags returns CLI flags for this tool
func (x *preference) Flags() []cli.Flag {
	return nil
}

// Init initializes the tool
func (x *preference) Init(ctx context.Context, client *tool.Client) (bool, error) {
	if client == nil || client.Repo == nil {
		return false, nil
	}
	x.repo = client.Repo
	return true, nil
}

// Prompt returns additional information to be added to the system prompt
func (x *preference) Prompt(ctx context.Context) string {
	return `When the user states a relocation preference (destination country, monthly budget, timeline, profession, languages), call save_preference so it can be used to personalize future answers. Save one preference per call.`
}

func factTypeNames() []any {
	types := model.FactTypes()
	names := make([]any, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}

// Specs returns the function definitions for provider function calling
func (x *preference) Specs() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        Name,
				Description: "Save a relocation preference the user has stated, so future answers can be personalized",
				Parameters: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"fact_type": {
							Type:        "string",
							Description: "Kind of preference being saved",
							Enum:        factTypeNames(),
						},
						"fact_value": {
							Type:        "string",
							Description: "The preference value, e.g. \"Portugal\" or \"2000 EUR/month\"",
						},
					},
					Required: []string{"fact_type", "fact_value"},
				},
			},
		},
	}
}

// Execute runs the tool. The returned value is a best-effort
// acknowledgment: persistence failures are logged, never surfaced, so
// the answer stream is not disturbed by a storage hiccup.
func (x *preference) Execute(ctx context.Context, userID model.UserID, name string, args map[string]any) (any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal arguments")
	}

	var input savePreferenceInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, goerr.Wrap(err, "failed to parse input parameters")
	}

	factType := model.FactType(input.FactType)
	if err := factType.Validate(); err != nil {
		return nil, err
	}
	if input.FactValue == "" {
		return nil, goerr.New("fact_value is required")
	}

	if userID.IsAnonymous() {
		return map[string]any{"status": "skipped", "reason": "anonymous user"}, nil
	}

	if err := x.save(ctx, userID, factType, input.FactValue); err != nil {
		logging.From(ctx).Warn("failed to save preference",
			"user_id", userID, "fact_type", factType, "error", err)
	}

	return map[string]any{
		"status":     "saved",
		"fact_type":  input.FactType,
		"fact_value": input.FactValue,
	}, nil
}

// save commits a novel fact directly and routes a changed value to the
// confirmation queue, so a committed fact is never silently overwritten
func (x *preference) save(ctx context.Context, userID model.UserID, factType model.FactType, value string) error {
	now := time.Now()

	existing, err := x.repo.GetFact(ctx, userID, factType)
	if err != nil && !errors.Is(err, repository.ErrFactNotFound) {
		return err
	}

	if existing == nil {
		return x.repo.PutFact(ctx, &model.Fact{
			ID:         model.NewFactID(),
			UserID:     userID,
			Type:       factType,
			Value:      value,
			Confidence: 1.0,
			Source:     "chat_tool",
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if existing.Value == value {
		return nil
	}

	return x.repo.PutPendingConfirmation(ctx, &model.PendingConfirmation{
		ID:         model.NewConfirmationID(),
		UserID:     userID,
		Type:       factType,
		OldValue:   existing.Value,
		NewValue:   value,
		Source:     "chat_tool",
		Confidence: 1.0,
		Status:     model.ConfirmationPending,
		CreatedAt:  now,
	})
}
