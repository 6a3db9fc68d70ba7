package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/quest-labs/relo/pkg/model"
)

const (
	defaultCollection = "user_memory"
	defaultDim        = 768
	defaultTopK       = 5
)

// Embedder converts text into a dense vector
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

// Service is the interface for long-term conversational memory
type Service interface {
	// Store saves one memory snippet for a user
	Store(ctx context.Context, userID model.UserID, content string) error
	// Recall returns the memory snippets most similar to the query
	Recall(ctx context.Context, userID model.UserID, query string, topK int) ([]string, error)
	// SyncFact stores a committed fact as a memory snippet
	SyncFact(ctx context.Context, userID model.UserID, fact *model.Fact) error
	// Close releases the connection
	Close() error
}

// Client implements Service on Milvus
type Client struct {
	client     client.Client
	embedder   Embedder
	collection string
	dim        int
}

type Option func(*Client)

// WithCollection overrides the default collection name
func WithCollection(name string) Option {
	return func(c *Client) {
		c.collection = name
	}
}

// WithDimension overrides the embedding dimension
func WithDimension(dim int) Option {
	return func(c *Client) {
		c.dim = dim
	}
}

// New connects to Milvus and ensures the memory collection exists
func New(ctx context.Context, address string, embedder Embedder, opts ...Option) (*Client, error) {
	milvusClient, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to milvus", goerr.V("address", address))
	}

	c := &Client{
		client:     milvusClient,
		embedder:   embedder,
		collection: defaultCollection,
		dim:        defaultDim,
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.ensureCollection(ctx); err != nil {
		milvusClient.Close()
		return nil, err
	}

	return c, nil
}

// Close releases the connection
func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) ensureCollection(ctx context.Context) error {
	exists, err := c.client.HasCollection(ctx, c.collection)
	if err != nil {
		return goerr.Wrap(err, "failed to check milvus collection", goerr.V("collection", c.collection))
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(c.collection).
			WithDescription("per-user long-term memory snippets").
			WithField(entity.NewField().WithName("id").
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName("user_id").
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
			WithField(entity.NewField().WithName("content").
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096)).
			WithField(entity.NewField().WithName("embedding").
				WithDataType(entity.FieldTypeFloatVector).WithDim(int64(c.dim)))

		if err := c.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return goerr.Wrap(err, "failed to create milvus collection", goerr.V("collection", c.collection))
		}

		idx, err := entity.NewIndexIvfFlat(entity.L2, 128)
		if err != nil {
			return goerr.Wrap(err, "failed to build index definition")
		}
		if err := c.client.CreateIndex(ctx, c.collection, "embedding", idx, false); err != nil {
			return goerr.Wrap(err, "failed to create milvus index", goerr.V("collection", c.collection))
		}
	}

	if err := c.client.LoadCollection(ctx, c.collection, false); err != nil {
		return goerr.Wrap(err, "failed to load milvus collection", goerr.V("collection", c.collection))
	}

	return nil
}

// Store saves one memory snippet for a user
func (c *Client) Store(ctx context.Context, userID model.UserID, content string) error {
	vector, err := c.embedder.Embedding(ctx, content)
	if err != nil {
		return goerr.Wrap(err, "failed to embed memory content", goerr.V("user_id", userID))
	}

	idCol := entity.NewColumnVarChar("id", []string{uuid.New().String()})
	userCol := entity.NewColumnVarChar("user_id", []string{string(userID)})
	contentCol := entity.NewColumnVarChar("content", []string{content})
	vectorCol := entity.NewColumnFloatVector("embedding", c.dim, [][]float32{vector})

	if _, err := c.client.Insert(ctx, c.collection, "", idCol, userCol, contentCol, vectorCol); err != nil {
		return goerr.Wrap(err, "failed to insert memory", goerr.V("user_id", userID))
	}

	return nil
}

// Recall returns the memory snippets most similar to the query,
// restricted to the user's own memories
func (c *Client) Recall(ctx context.Context, userID model.UserID, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	vector, err := c.embedder.Embedding(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed recall query", goerr.V("user_id", userID))
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(10)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build search param")
	}

	expr := fmt.Sprintf(`user_id == "%s"`, strings.ReplaceAll(string(userID), `"`, ``))

	results, err := c.client.Search(
		ctx,
		c.collection,
		nil,
		expr,
		[]string{"content"},
		[]entity.Vector{entity.FloatVector(vector)},
		"embedding",
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memory", goerr.V("user_id", userID))
	}

	var snippets []string
	for _, result := range results {
		for _, field := range result.Fields {
			if field.Name() != "content" {
				continue
			}
			for i := 0; i < result.ResultCount; i++ {
				content, err := field.GetAsString(i)
				if err != nil {
					continue
				}
				snippets = append(snippets, content)
			}
		}
	}

	return snippets, nil
}

// SyncFact stores a committed fact as a memory snippet
func (c *Client) SyncFact(ctx context.Context, userID model.UserID, fact *model.Fact) error {
	content := fmt.Sprintf("%s: %s", fact.Type, fact.Value)
	return c.Store(ctx, userID, content)
}
