package mcp

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/tool"
	"github.com/urfave/cli/v3"
)

// Provider exposes MCP server tools to the completion loop as a single
// tool.Tool
type Provider struct {
	client *Client
	tools  []*mcpTool
}

type mcpTool struct {
	serverName string
	mcpTool    *mcp.Tool
	spec       openai.Tool
}

// NewProvider creates a new MCP tool provider
func NewProvider(client *Client) *Provider {
	return &Provider{
		client: client,
		tools:  make([]*mcpTool, 0),
	}
}

// Flags returns CLI flags for MCP provider
func (p *Provider) Flags() []cli.Flag {
	return nil // MCP config is loaded separately
}

// Init initializes the MCP provider and registers tools
func (p *Provider) Init(ctx context.Context, client *tool.Client) (bool, error) {
	if p.client == nil {
		return false, nil
	}

	serverNames := p.client.GetAllServers()
	if len(serverNames) == 0 {
		return false, nil
	}

	for _, serverName := range serverNames {
		tools, err := p.client.GetTools(serverName)
		if err != nil {
			return false, goerr.Wrap(err, "failed to get tools from server",
				goerr.V("server", serverName))
		}

		for _, t := range tools {
			spec, err := convertToFunctionSpec(t)
			if err != nil {
				return false, goerr.Wrap(err, "failed to convert tool",
					goerr.V("server", serverName),
					goerr.V("tool", t.Name))
			}

			p.tools = append(p.tools, &mcpTool{
				serverName: serverName,
				mcpTool:    t,
				spec:       spec,
			})
		}
	}

	return len(p.tools) > 0, nil
}

// Specs returns the function definitions for provider function calling
func (p *Provider) Specs() []openai.Tool {
	specs := make([]openai.Tool, 0, len(p.tools))
	for _, t := range p.tools {
		specs = append(specs, t.spec)
	}
	return specs
}

// Prompt returns additional prompt information
func (p *Provider) Prompt(ctx context.Context) string {
	if len(p.tools) == 0 {
		return ""
	}

	return "You have access to MCP (Model Context Protocol) tools that provide additional capabilities like file system access, database queries, and web searches."
}

// Execute calls the matching MCP tool and returns its result as a
// JSON-serializable payload
func (p *Provider) Execute(ctx context.Context, userID model.UserID, name string, args map[string]any) (any, error) {
	var targetTool *mcpTool
	for _, t := range p.tools {
		if t.spec.Function != nil && t.spec.Function.Name == name {
			targetTool = t
			break
		}
	}

	if targetTool == nil {
		return nil, goerr.New("tool not found", goerr.V("name", name))
	}

	result, err := p.client.CallTool(ctx, targetTool.serverName, targetTool.mcpTool.Name, args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call MCP tool")
	}

	resultJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal result")
	}

	return map[string]any{"result": string(resultJSON)}, nil
}
