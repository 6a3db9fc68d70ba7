package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/quest-labs/relo/pkg/adapter"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/tool"
	"github.com/quest-labs/relo/pkg/tool/preference"
	"github.com/quest-labs/relo/pkg/utils/logging"
)

// Emitter receives the user-visible events of one chat turn
type Emitter interface {
	Content(text string) error
	Tool(name string) error
	Error(message string) error
	Done() error
}

// TurnInput contains parameters for one chat turn
type TurnInput struct {
	ThreadID    model.ThreadID
	UserMessage string
	Context     map[string]string
}

// UseCase drives one user-visible streamed answer, transparently
// handling tool invocation rounds
type UseCase struct {
	store    *Store
	llm      adapter.OpenAI
	registry *tool.Registry
}

// New creates the chat turn usecase
func New(store *Store, llm adapter.OpenAI, registry *tool.Registry) *UseCase {
	return &UseCase{
		store:    store,
		llm:      llm,
		registry: registry,
	}
}

// HandleTurn runs one chat turn. Any failure is converted into a single
// user-visible error event; the terminal marker is emitted exactly once
// on every path so the client is never left waiting.
func (x *UseCase) HandleTurn(ctx context.Context, input TurnInput, emitter Emitter) error {
	logger := logging.From(ctx)

	if err := x.handleTurn(ctx, input, emitter); err != nil {
		logger.Error("chat turn failed", "thread", input.ThreadID, "error", err)
		if emitErr := emitter.Error("Sorry, something went wrong. Please try again."); emitErr != nil {
			logger.Warn("failed to emit error event", "error", emitErr)
		}
		if doneErr := emitter.Done(); doneErr != nil {
			logger.Warn("failed to emit done event", "error", doneErr)
		}
		return err
	}

	if err := emitter.Done(); err != nil {
		return goerr.Wrap(err, "failed to emit done event")
	}
	return nil
}

func (x *UseCase) handleTurn(ctx context.Context, input TurnInput, emitter Emitter) error {
	if input.Context != nil {
		x.store.SetContext(input.ThreadID, input.Context)
	}
	if input.UserMessage != "" {
		x.store.Append(input.ThreadID, model.NewUserMessage(input.UserMessage))
	}

	msgs := x.store.BuildPromptMessages(input.ThreadID)
	if prompts := x.registry.Prompts(ctx); prompts != "" {
		msgs[0].Content += "\n\n" + prompts
	}

	acc := newToolCallAccumulator()
	text, err := x.consumeStream(ctx, openai.ChatCompletionRequest{
		Messages: toChatMessages(msgs),
		Tools:    x.registry.Specs(),
		Stream:   true,
	}, emitter, acc)
	if err != nil {
		return err
	}

	calls := acc.Finalize()
	if len(calls) == 0 {
		x.store.Append(input.ThreadID, model.NewAssistantMessage(text))
		return nil
	}

	// The assistant message carrying the tool calls must precede the
	// tool result messages, and results keep the issue order: the
	// provider rejects threads that violate either.
	x.store.Append(input.ThreadID, model.Message{
		Role:      model.RoleAssistant,
		Content:   text,
		ToolCalls: calls,
	})

	for _, call := range calls {
		if err := emitter.Tool(call.Name); err != nil {
			return goerr.Wrap(err, "failed to emit tool event")
		}

		result := x.registry.Execute(ctx, model.AnonymousUserID, call)
		x.mirrorPreference(input.ThreadID, call)

		payload, err := json.Marshal(result)
		if err != nil {
			logging.From(ctx).Warn("failed to encode tool result", "tool", call.Name, "error", err)
			payload = []byte(`{"error":"failed to encode tool result"}`)
		}
		x.store.Append(input.ThreadID, model.NewToolMessage(call.ID, string(payload)))
	}

	finalText, err := x.consumeStream(ctx, openai.ChatCompletionRequest{
		Messages: toChatMessages(x.store.BuildPromptMessages(input.ThreadID)),
		Stream:   true,
	}, emitter, nil)
	if err != nil {
		return err
	}

	x.store.Append(input.ThreadID, model.NewAssistantMessage(finalText))
	return nil
}

// consumeStream forwards text deltas to the emitter as they arrive and
// feeds tool-call deltas into the accumulator when one is given. It
// returns the accumulated assistant text.
func (x *UseCase) consumeStream(ctx context.Context, req openai.ChatCompletionRequest, emitter Emitter, acc *toolCallAccumulator) (string, error) {
	stream, err := x.llm.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create completion stream")
	}
	defer stream.Close()

	var text strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", goerr.Wrap(err, "failed to receive stream chunk")
		}

		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content != "" {
			text.WriteString(delta.Content)
			if err := emitter.Content(delta.Content); err != nil {
				return "", goerr.Wrap(err, "failed to emit content")
			}
		}

		if acc != nil {
			for _, tc := range delta.ToolCalls {
				acc.Add(tc)
			}
		}
	}

	return text.String(), nil
}

// mirrorPreference reflects a saved preference into the thread context
// so the next prompt render picks it up without a round trip to storage
func (x *UseCase) mirrorPreference(id model.ThreadID, call model.ToolCall) {
	if call.Name != preference.Name {
		return
	}

	var args struct {
		FactType  string `json:"fact_type"`
		FactValue string `json:"fact_value"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return
	}
	if args.FactType == "" || args.FactValue == "" {
		return
	}

	x.store.SetContextValue(id, args.FactType, args.FactValue)
}

func toChatMessages(msgs []model.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, cm)
	}
	return out
}
