package chat

import (
	_ "embed"
	"strings"

	"github.com/quest-labs/relo/pkg/model"
)

//go:embed system_prompt.md
var systemPrompt string

// contextKeys are the recognized context keys, rendered in this order.
// Unrecognized keys are ignored.
var contextKeys = []struct {
	key   string
	label string
}{
	{"destination", "Destination"},
	{"budget", "Budget"},
	{"timeline", "Timeline"},
}

// renderSystemPrompt builds the system message content from the thread
// context. Rendering is deterministic: recognized keys only, fixed order.
func renderSystemPrompt(context map[string]string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(systemPrompt))

	var lines []string
	for _, ck := range contextKeys {
		if v, ok := context[ck.key]; ok && v != "" {
			lines = append(lines, "- "+ck.label+": "+v)
		}
	}

	if len(lines) > 0 {
		sb.WriteString("\n\nKnown user preferences:\n")
		sb.WriteString(strings.Join(lines, "\n"))
	}

	return sb.String()
}

func systemMessage(context map[string]string) model.Message {
	return model.NewSystemMessage(renderSystemPrompt(context))
}
