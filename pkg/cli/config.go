package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/quest-labs/relo/pkg/adapter"
	"github.com/quest-labs/relo/pkg/policy"
	"github.com/quest-labs/relo/pkg/repository"
	"github.com/quest-labs/relo/pkg/service/kg"
	"github.com/quest-labs/relo/pkg/service/memory"
	"github.com/quest-labs/relo/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	logLevel  string
	logFormat string

	// Repository
	project  string
	database string

	// Adapters
	openaiAPIKey   string
	openaiModel    string
	geminiProject  string
	geminiLocation string

	// Services
	neo4jURI      string
	neo4jUser     string
	neo4jPassword string
	neo4jDatabase string
	milvusAddress string
	bucket        string

	policyDir string
	mcpConfig string
}

func loggingFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("RELO_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("RELO_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
	return append(flags, loggingFlags(cfg)...)
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Usage:       "OpenAI chat model",
			Sources:     cli.EnvVars("RELO_OPENAI_MODEL"),
			Destination: &cfg.openaiModel,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
	}
}

// serviceFlags returns flags for the optional context services
func serviceFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "neo4j-uri",
			Usage:       "Neo4j URI for the knowledge graph (empty disables it)",
			Sources:     cli.EnvVars("NEO4J_URI"),
			Destination: &cfg.neo4jURI,
		},
		&cli.StringFlag{
			Name:        "neo4j-user",
			Usage:       "Neo4j username",
			Value:       "neo4j",
			Sources:     cli.EnvVars("NEO4J_USER"),
			Destination: &cfg.neo4jUser,
		},
		&cli.StringFlag{
			Name:        "neo4j-password",
			Usage:       "Neo4j password",
			Sources:     cli.EnvVars("NEO4J_PASSWORD"),
			Destination: &cfg.neo4jPassword,
		},
		&cli.StringFlag{
			Name:        "neo4j-database",
			Usage:       "Neo4j database name",
			Value:       "neo4j",
			Sources:     cli.EnvVars("NEO4J_DATABASE"),
			Destination: &cfg.neo4jDatabase,
		},
		&cli.StringFlag{
			Name:        "milvus-address",
			Usage:       "Milvus address for long-term memory (empty disables it)",
			Sources:     cli.EnvVars("MILVUS_ADDRESS"),
			Destination: &cfg.milvusAddress,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for transcripts (empty disables archival)",
			Sources:     cli.EnvVars("RELO_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego fact policies (empty uses the built-in policy)",
			Sources:     cli.EnvVars("RELO_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "mcp-config",
			Usage:       "Path to MCP server configuration YAML",
			Sources:     cli.EnvVars("RELO_MCP_CONFIG"),
			Destination: &cfg.mcpConfig,
		},
	}
}

// setupLogging builds the logger from flags and injects it into ctx
func (cfg *config) setupLogging(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, cfg.logFormat, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	repo, err := repository.New(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newOpenAI creates a new OpenAI adapter instance
func (cfg *config) newOpenAI() (adapter.OpenAI, error) {
	var opts []adapter.OpenAIOption
	if cfg.openaiModel != "" {
		opts = append(opts, adapter.WithChatModel(cfg.openaiModel))
	}

	client, err := adapter.NewOpenAI(cfg.openaiAPIKey, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create openai adapter")
	}
	return client, nil
}

// newGemini creates a new Gemini adapter instance. Returns nil when no
// project is configured, which disables fact extraction.
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, nil
	}

	client, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini adapter")
	}
	return client, nil
}

// newKG creates the knowledge graph service, nil when not configured
func (cfg *config) newKG(ctx context.Context) (kg.Service, error) {
	if cfg.neo4jURI == "" {
		return nil, nil
	}

	svc, err := kg.New(ctx, cfg.neo4jURI, cfg.neo4jUser, cfg.neo4jPassword, cfg.neo4jDatabase)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create knowledge graph service")
	}
	return svc, nil
}

// newMemory creates the long-term memory service, nil when not
// configured or when no embedder is available
func (cfg *config) newMemory(ctx context.Context, embedder memory.Embedder) (memory.Service, error) {
	if cfg.milvusAddress == "" || embedder == nil {
		return nil, nil
	}

	svc, err := memory.New(ctx, cfg.milvusAddress, embedder)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create memory service")
	}
	return svc, nil
}

// newStorage creates the transcript storage, nil when not configured
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.bucket == "" {
		return nil, nil
	}

	storage, err := adapter.NewStorage(ctx, cfg.bucket)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newPolicy creates the facts policy engine
func (cfg *config) newPolicy(ctx context.Context) (*policy.Engine, error) {
	engine, err := policy.New(ctx, cfg.policyDir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load facts policy")
	}
	return engine, nil
}
