package chat

import (
	"context"
	"io"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/quest-labs/relo/pkg/adapter"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/repository"
	"github.com/quest-labs/relo/pkg/tool"
	"github.com/quest-labs/relo/pkg/tool/preference"
)

func intPtr(v int) *int { return &v }

func contentChunk(text string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{
			{Delta: openai.ChatCompletionStreamChoiceDelta{Content: text}},
		},
	}
}

func toolChunk(index int, id, name, args string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{
			{Delta: openai.ChatCompletionStreamChoiceDelta{
				ToolCalls: []openai.ToolCall{
					{
						Index: intPtr(index),
						ID:    id,
						Function: openai.FunctionCall{
							Name:      name,
							Arguments: args,
						},
					},
				},
			}},
		},
	}
}

type mockStream struct {
	responses []openai.ChatCompletionStreamResponse
	closed    bool
}

func (s *mockStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if len(s.responses) == 0 {
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *mockStream) Close() error {
	s.closed = true
	return nil
}

type mockLLM struct {
	streams  []*mockStream
	requests []openai.ChatCompletionRequest
	err      error
}

func (m *mockLLM) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, goerr.New("not implemented")
}

func (m *mockLLM) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (adapter.ChatStream, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.requests = append(m.requests, req)
	if len(m.streams) == 0 {
		return nil, goerr.New("no more streams scripted")
	}
	stream := m.streams[0]
	m.streams = m.streams[1:]
	return stream, nil
}

type mockEmitter struct {
	contents  []string
	tools     []string
	errors    []string
	doneCount int
}

func (e *mockEmitter) Content(text string) error {
	e.contents = append(e.contents, text)
	return nil
}

func (e *mockEmitter) Tool(name string) error {
	e.tools = append(e.tools, name)
	return nil
}

func (e *mockEmitter) Error(message string) error {
	e.errors = append(e.errors, message)
	return nil
}

func (e *mockEmitter) Done() error {
	e.doneCount++
	return nil
}

func newTestRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	registry, err := tool.New(context.Background(), &tool.Client{
		Repo: repository.NewMemory(),
	}, preference.New())
	gt.NoError(t, err)
	return registry
}

func TestToolCallAccumulator(t *testing.T) {
	t.Run("reassembles fragmented arguments", func(t *testing.T) {
		acc := newToolCallAccumulator()
		acc.Add(openai.ToolCall{Index: intPtr(0), ID: "call_1", Function: openai.FunctionCall{Name: "save_preference", Arguments: `{"a":`}})
		acc.Add(openai.ToolCall{Index: intPtr(0), Function: openai.FunctionCall{Arguments: `1}`}})

		calls := acc.Finalize()
		gt.A(t, calls).Length(1)
		gt.Equal(t, calls[0].ID, "call_1")
		gt.Equal(t, calls[0].Name, "save_preference")
		gt.Equal(t, calls[0].Arguments, `{"a":1}`)
	})

	t.Run("orders calls by index", func(t *testing.T) {
		acc := newToolCallAccumulator()
		acc.Add(openai.ToolCall{Index: intPtr(1), ID: "call_b", Function: openai.FunctionCall{Name: "second"}})
		acc.Add(openai.ToolCall{Index: intPtr(0), ID: "call_a", Function: openai.FunctionCall{Name: "first"}})

		calls := acc.Finalize()
		gt.A(t, calls).Length(2)
		gt.Equal(t, calls[0].Name, "first")
		gt.Equal(t, calls[1].Name, "second")
	})

	t.Run("drops deltas without index", func(t *testing.T) {
		acc := newToolCallAccumulator()
		acc.Add(openai.ToolCall{ID: "call_x", Function: openai.FunctionCall{Name: "orphan"}})

		gt.A(t, acc.Finalize()).Length(0)
	})
}

func TestHandleTurnPlainAnswer(t *testing.T) {
	llm := &mockLLM{
		streams: []*mockStream{
			{responses: []openai.ChatCompletionStreamResponse{
				contentChunk("Hello"),
				contentChunk(" there"),
			}},
		},
	}

	store := NewStore()
	uc := New(store, llm, newTestRegistry(t))
	emitter := &mockEmitter{}

	threadID := model.NewThreadID()
	gt.NoError(t, uc.HandleTurn(context.Background(), TurnInput{
		ThreadID:    threadID,
		UserMessage: "hi",
	}, emitter))

	gt.Equal(t, emitter.contents, []string{"Hello", " there"})
	gt.Equal(t, emitter.doneCount, 1)
	gt.A(t, emitter.errors).Length(0)

	msgs := store.BuildPromptMessages(threadID)
	gt.A(t, msgs).Length(3)
	gt.Equal(t, msgs[2].Role, model.RoleAssistant)
	gt.Equal(t, msgs[2].Content, "Hello there")
}

func TestHandleTurnWithToolCalls(t *testing.T) {
	llm := &mockLLM{
		streams: []*mockStream{
			{responses: []openai.ChatCompletionStreamResponse{
				toolChunk(0, "call_1", "save_preference", `{"fact_type": "dest`),
				toolChunk(0, "", "", `ination", "fact_value": "Portugal"}`),
			}},
			{responses: []openai.ChatCompletionStreamResponse{
				contentChunk("Portugal is a great choice."),
			}},
		},
	}

	store := NewStore()
	uc := New(store, llm, newTestRegistry(t))
	emitter := &mockEmitter{}

	threadID := model.NewThreadID()
	gt.NoError(t, uc.HandleTurn(context.Background(), TurnInput{
		ThreadID:    threadID,
		UserMessage: "I want to move to Portugal",
	}, emitter))

	gt.Equal(t, emitter.tools, []string{"save_preference"})
	gt.Equal(t, emitter.contents, []string{"Portugal is a great choice."})
	gt.Equal(t, emitter.doneCount, 1)

	// first round carries the tool catalog, the follow-up does not
	gt.A(t, llm.requests).Length(2)
	gt.A(t, llm.requests[0].Tools).Longer(0)
	gt.A(t, llm.requests[1].Tools).Length(0)

	msgs := store.BuildPromptMessages(threadID)
	// system, user, assistant(tool_calls), tool, assistant
	gt.A(t, msgs).Length(5)
	gt.A(t, msgs[2].ToolCalls).Length(1)
	gt.Equal(t, msgs[3].Role, model.RoleTool)
	gt.Equal(t, msgs[3].ToolCallID, "call_1")
	gt.Equal(t, msgs[4].Content, "Portugal is a great choice.")

	// the saved preference is mirrored into the thread context
	gt.S(t, msgs[0].Content).Contains("Destination: Portugal")
}

func TestHandleTurnUnknownTool(t *testing.T) {
	llm := &mockLLM{
		streams: []*mockStream{
			{responses: []openai.ChatCompletionStreamResponse{
				toolChunk(0, "call_1", "lookup_weather", `{}`),
			}},
			{responses: []openai.ChatCompletionStreamResponse{
				contentChunk("Let me answer without that."),
			}},
		},
	}

	store := NewStore()
	uc := New(store, llm, newTestRegistry(t))
	emitter := &mockEmitter{}

	threadID := model.NewThreadID()
	gt.NoError(t, uc.HandleTurn(context.Background(), TurnInput{
		ThreadID:    threadID,
		UserMessage: "what's the weather in Lisbon?",
	}, emitter))

	gt.Equal(t, emitter.doneCount, 1)
	gt.A(t, emitter.errors).Length(0)

	msgs := store.BuildPromptMessages(threadID)
	gt.Equal(t, msgs[3].Role, model.RoleTool)
	gt.S(t, msgs[3].Content).Contains("Unknown tool: lookup_weather")
	gt.Equal(t, msgs[4].Content, "Let me answer without that.")
}

func TestHandleTurnStreamFailure(t *testing.T) {
	llm := &mockLLM{err: goerr.New("provider unavailable")}

	store := NewStore()
	uc := New(store, llm, newTestRegistry(t))
	emitter := &mockEmitter{}

	err := uc.HandleTurn(context.Background(), TurnInput{
		ThreadID:    model.NewThreadID(),
		UserMessage: "hi",
	}, emitter)
	gt.Error(t, err)

	gt.A(t, emitter.errors).Length(1)
	gt.Equal(t, emitter.doneCount, 1)
}
