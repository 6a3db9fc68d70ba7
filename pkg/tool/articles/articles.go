package articles

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/repository"
	"github.com/quest-labs/relo/pkg/tool"
	"github.com/urfave/cli/v3"
)

type searchArticlesInput struct {
	Query       string `json:"query"`
	CountryCode string `json:"country_code"`
	Limit       int    `json:"limit"`
}

type articles struct {
	repo  repository.Repository
	appID string
}

// New creates the article search tool
func New() *articles {
	return &articles{}
}

// Flags returns CLI flags for this tool
func (x *articles) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "articles-app-id",
			Sources:     cli.EnvVars("RELO_ARTICLES_APP_ID"),
			Usage:       "Restrict article search to one network site",
			Destination: &x.appID,
		},
	}
}

// Init initializes the tool
func (x *articles) Init(ctx context.Context, client *tool.Client) (bool, error) {
	if client == nil || client.Repo == nil {
		return false, nil
	}
	x.repo = client.Repo
	return true, nil
}

// Prompt returns additional information to be added to the system prompt
func (x *articles) Prompt(ctx context.Context) string {
	return `Use search_articles to find published relocation guides when the user asks about visas, cost of living, healthcare or similar topics with published coverage. Cite article titles in your answer.`
}

// Specs returns the function definitions for provider function calling
func (x *articles) Specs() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "search_articles",
				Description: "Search published relocation guides and articles",
				Parameters: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"query": {
							Type:        "string",
							Description: "Search keywords, e.g. \"D7 visa\"",
						},
						"country_code": {
							Type:        "string",
							Description: "Optional ISO country code filter, e.g. \"PT\"",
						},
						"limit": {
							Type:        "integer",
							Description: "Maximum number of results, default 5",
						},
					},
					Required: []string{"query"},
				},
			},
		},
	}
}

// Execute runs the tool with the given arguments
func (x *articles) Execute(ctx context.Context, userID model.UserID, name string, args map[string]any) (any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal arguments")
	}

	var input searchArticlesInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, goerr.Wrap(err, "failed to parse input parameters")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 5
	}

	results, err := x.repo.SearchArticles(ctx, &repository.SearchArticlesInput{
		Query:       input.Query,
		CountryCode: input.CountryCode,
		AppID:       x.appID,
		Limit:       limit,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search articles", goerr.V("query", input.Query))
	}

	items := make([]map[string]any, 0, len(results))
	for _, a := range results {
		items = append(items, map[string]any{
			"title":        a.Title,
			"excerpt":      a.Excerpt,
			"country_code": a.CountryCode,
		})
	}

	return map[string]any{"articles": items}, nil
}
