package voice

import (
	"context"
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/quest-labs/relo/pkg/model"
	"google.golang.org/genai"
)

//go:embed extract_prompt.md
var extractPrompt string

// extractFacts asks the extraction model for typed fact candidates in
// the turn. Candidates come back in extraction order, each tagged with
// a confidence score and a requires_confirmation flag.
func (x *UseCase) extractFacts(ctx context.Context, utterance, answer string, existing []*model.Fact) ([]model.CandidateFact, error) {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(extractPrompt))

	if len(existing) > 0 {
		sb.WriteString("\n\nFacts already known about the user:\n")
		for _, f := range existing {
			sb.WriteString("- " + string(f.Type) + ": " + f.Value + "\n")
		}
	}

	sb.WriteString("\n\nUser said:\n" + utterance)
	sb.WriteString("\n\nAssistant answered:\n" + answer)

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	contents := []*genai.Content{
		genai.NewContentFromText(sb.String(), genai.RoleUser),
	}

	resp, err := x.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to extract facts")
	}

	text := strings.TrimSpace(resp.Text())
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if text == "" {
		return nil, nil
	}

	var candidates []model.CandidateFact
	if err := json.Unmarshal([]byte(text), &candidates); err != nil {
		return nil, goerr.Wrap(err, "failed to parse extracted facts", goerr.V("response", text))
	}

	return candidates, nil
}
