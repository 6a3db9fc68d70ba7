package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"
)

// ChatStream yields streamed completion chunks. Recv returns io.EOF
// when the stream is exhausted.
type ChatStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// OpenAI is the interface for the chat completion provider
type OpenAI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error)
}

type OpenAIClient struct {
	client *openai.Client
	model  string
}

type OpenAIOption func(*OpenAIClient)

// WithChatModel overrides the default chat model
func WithChatModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.model = model
	}
}

// NewOpenAI creates a new OpenAI chat client
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, goerr.New("openai api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	c := &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  openai.GPT4oMini,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionResponse{}, goerr.Wrap(err, "failed to create chat completion", goerr.V("model", req.Model))
	}

	return resp, nil
}

func (c *OpenAIClient) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create chat completion stream", goerr.V("model", req.Model))
	}

	return stream, nil
}
