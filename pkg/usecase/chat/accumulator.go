package chat

import (
	"sort"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/quest-labs/relo/pkg/model"
)

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// toolCallAccumulator reassembles streamed tool calls. A single call's
// arguments arrive fragmented across many chunks; fragments are
// concatenated in arrival order keyed by the provider-assigned index,
// and only parsed once the stream is exhausted.
type toolCallAccumulator struct {
	calls map[int]*pendingCall
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{
		calls: make(map[int]*pendingCall),
	}
}

// Add merges one streamed delta into the accumulator. Deltas without an
// index cannot be correlated and are dropped.
func (a *toolCallAccumulator) Add(delta openai.ToolCall) {
	if delta.Index == nil {
		return
	}

	call, ok := a.calls[*delta.Index]
	if !ok {
		call = &pendingCall{}
		a.calls[*delta.Index] = call
	}

	if delta.ID != "" {
		call.id = delta.ID
	}
	if delta.Function.Name != "" {
		call.name = delta.Function.Name
	}
	call.args.WriteString(delta.Function.Arguments)
}

// Finalize returns the completed tool calls in index order
func (a *toolCallAccumulator) Finalize() []model.ToolCall {
	indexes := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]model.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		call := a.calls[idx]
		calls = append(calls, model.ToolCall{
			ID:        call.id,
			Name:      call.name,
			Arguments: call.args.String(),
		})
	}
	return calls
}
