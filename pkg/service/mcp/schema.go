package mcp

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// convertToFunctionSpec converts an MCP tool to an OpenAI function
// definition. The input schema is round-tripped through JSON since the
// SDK leaves its concrete type open.
func convertToFunctionSpec(t *mcp.Tool) (openai.Tool, error) {
	def := &openai.FunctionDefinition{
		Name:        t.Name,
		Description: t.Description,
	}

	if t.InputSchema != nil {
		schemaJSON, err := json.Marshal(t.InputSchema)
		if err != nil {
			return openai.Tool{}, goerr.Wrap(err, "failed to marshal input schema")
		}

		var schema jsonschema.Schema
		if err := json.Unmarshal(schemaJSON, &schema); err != nil {
			return openai.Tool{}, goerr.Wrap(err, "failed to unmarshal input schema")
		}

		def.Parameters = &schema
	}

	return openai.Tool{
		Type:     openai.ToolTypeFunction,
		Function: def,
	}, nil
}
