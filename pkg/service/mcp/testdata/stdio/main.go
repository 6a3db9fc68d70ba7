package main

import (
	"context"
	"log"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// visaInfoParams defines the parameters for the visa_info tool
type visaInfoParams struct {
	Country string `json:"country" jsonschema:"Destination country"`
}

// visaInfo returns a canned answer for the test tool
func visaInfo(ctx context.Context, req *mcp.CallToolRequest, params *visaInfoParams) (*mcp.CallToolResult, any, error) {
	country := params.Country
	if country == "" {
		country = "Portugal"
	}

	response := "Visa options for " + country + ": D7, digital nomad visa."

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: response},
		},
	}, nil, nil
}

func main() {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "test-stdio-server",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "visa_info",
		Description: "Look up visa options for a destination country",
	}, visaInfo)

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("Server failed: %v", err)
		os.Exit(1)
	}
}
