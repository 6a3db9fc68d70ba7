package tool

import (
	"context"

	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/urfave/cli/v3"
)

// Tool represents a server-side function the completion provider can call
type Tool interface {
	// Specs returns the function definitions for provider function calling
	Specs() []openai.Tool

	// Execute runs the named function with parsed arguments and returns a
	// JSON-serializable result
	Execute(ctx context.Context, userID model.UserID, name string, args map[string]any) (any, error)

	// Prompt returns additional information to be added to the system prompt
	// Returns empty string if no additional prompt is needed
	Prompt(ctx context.Context) string

	// Flags returns CLI flags for this tool
	// Returns nil if no flags are needed
	Flags() []cli.Flag

	// Init prepares the tool and reports whether it is enabled
	Init(ctx context.Context, client *Client) (bool, error)
}
