package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/quest-labs/relo/pkg/model"
)

// sseWriter writes Server-Sent-Events data lines and terminates the
// byte stream with the [DONE] sentinel exactly once
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	done    sync.Once
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, goerr.New("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal SSE event")
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return goerr.Wrap(err, "failed to write SSE event")
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) terminate() error {
	var err error
	s.done.Do(func() {
		_, err = fmt.Fprint(s.w, "data: [DONE]\n\n")
		s.flusher.Flush()
	})
	if err != nil {
		return goerr.Wrap(err, "failed to write DONE sentinel")
	}
	return nil
}

// chatEmitter maps chat turn events onto the generative UI wire
// format. The done event carries the thread id so clients that let the
// server mint one can continue the thread.
type chatEmitter struct {
	sse      *sseWriter
	threadID model.ThreadID
}

func (e *chatEmitter) Content(text string) error {
	return e.sse.send(map[string]any{"type": "content", "content": text})
}

func (e *chatEmitter) Tool(name string) error {
	return e.sse.send(map[string]any{"type": "tool", "name": name})
}

func (e *chatEmitter) Error(message string) error {
	return e.sse.send(map[string]any{"type": "error", "error": message})
}

func (e *chatEmitter) Done() error {
	if err := e.sse.send(map[string]any{"type": "done", "threadId": e.threadID}); err != nil {
		return err
	}
	return e.sse.terminate()
}

// voiceEmitter maps voice turn chunks onto the OpenAI-compatible
// chat.completion.chunk wire format
type voiceEmitter struct {
	sse     *sseWriter
	id      string
	created int64
}

func newVoiceEmitter(sse *sseWriter) *voiceEmitter {
	return &voiceEmitter{
		sse:     sse,
		id:      "chatcmpl-" + uuid.New().String(),
		created: time.Now().Unix(),
	}
}

type completionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason any        `json:"finish_reason"`
}

type chunkDelta struct {
	Content string `json:"content,omitempty"`
}

func (e *voiceEmitter) Content(text string) error {
	return e.sse.send(completionChunk{
		ID:      e.id,
		Object:  "chat.completion.chunk",
		Created: e.created,
		Choices: []chunkChoice{
			{Delta: chunkDelta{Content: text}},
		},
	})
}

func (e *voiceEmitter) Done() error {
	if err := e.sse.send(completionChunk{
		ID:      e.id,
		Object:  "chat.completion.chunk",
		Created: e.created,
		Choices: []chunkChoice{
			{FinishReason: "stop"},
		},
	}); err != nil {
		return err
	}
	return e.sse.terminate()
}
