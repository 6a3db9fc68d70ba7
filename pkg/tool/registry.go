package tool

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Registry manages the tool catalog for the completion loop
type Registry struct {
	tools    map[string]Tool
	allTools []Tool
	specs    []openai.Tool
}

// New initializes the given tools against the shared client and builds
// a registry from the enabled ones
func New(ctx context.Context, client *Client, tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]Tool),
	}

	for _, t := range tools {
		enabled, err := t.Init(ctx, client)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize tool")
		}
		if !enabled {
			continue
		}

		r.allTools = append(r.allTools, t)
		for _, spec := range t.Specs() {
			if spec.Function == nil {
				continue
			}
			r.specs = append(r.specs, spec)
			r.tools[spec.Function.Name] = t
		}
	}

	return r, nil
}

// Specs returns all function definitions for provider function calling
func (r *Registry) Specs() []openai.Tool {
	return r.specs
}

// Prompts returns all tool prompts concatenated
func (r *Registry) Prompts(ctx context.Context) string {
	var prompts []string
	for _, t := range r.allTools {
		if prompt := t.Prompt(ctx); prompt != "" {
			prompts = append(prompts, prompt)
		}
	}
	return strings.Join(prompts, "\n\n")
}

// Flags returns all tool flags combined
func Flags(tools ...Tool) []cli.Flag {
	var flags []cli.Flag
	for _, t := range tools {
		if toolFlags := t.Flags(); toolFlags != nil {
			flags = append(flags, toolFlags...)
		}
	}
	return flags
}

// Execute runs one accumulated tool call and always returns a
// JSON-serializable result. Unknown names, malformed arguments and tool
// failures degrade to structured error objects so one bad call never
// aborts the stream.
func (r *Registry) Execute(ctx context.Context, userID model.UserID, call model.ToolCall) any {
	logger := logging.From(ctx)

	tool, ok := r.tools[call.Name]
	if !ok {
		logger.Warn("unknown tool requested", "name", call.Name)
		return map[string]any{"error": "Unknown tool: " + call.Name}
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			logger.Warn("malformed tool arguments", "name", call.Name, "error", err)
			return map[string]any{"error": "invalid arguments: " + err.Error()}
		}
	}

	result, err := tool.Execute(ctx, userID, call.Name, args)
	if err != nil {
		logger.Warn("tool execution failed", "name", call.Name, "error", err)
		return map[string]any{"error": err.Error()}
	}

	return result
}
