package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/quest-labs/relo/pkg/adapter"
	"github.com/quest-labs/relo/pkg/repository"
	"github.com/quest-labs/relo/pkg/server"
	"github.com/quest-labs/relo/pkg/tool"
	"github.com/quest-labs/relo/pkg/usecase/chat"
	"github.com/quest-labs/relo/pkg/usecase/voice"
)

type stubStream struct {
	chunks []string
}

func (s *stubStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if len(s.chunks) == 0 {
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{
			{Delta: openai.ChatCompletionStreamChoiceDelta{Content: chunk}},
		},
	}, nil
}

func (s *stubStream) Close() error { return nil }

type stubLLM struct {
	answer string
	fail   bool
}

func (s *stubLLM) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if s.fail {
		return openai.ChatCompletionResponse{}, goerr.New("provider down")
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: "assistant", Content: s.answer}},
		},
	}, nil
}

func (s *stubLLM) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (adapter.ChatStream, error) {
	if s.fail {
		return nil, goerr.New("provider down")
	}
	return &stubStream{chunks: strings.Split(s.answer, "|")}, nil
}

func newTestServer(t *testing.T, llm adapter.OpenAI) *server.Server {
	t.Helper()

	registry, err := tool.New(context.Background(), &tool.Client{})
	gt.NoError(t, err)

	chatUC := chat.New(chat.NewStore(), llm, registry)
	voiceUC := voice.New(voice.NewInput{
		Repo: repository.NewMemory(),
		LLM:  llm,
	}, voice.WithSleeper(func(time.Duration) {}))

	return server.New("127.0.0.1:0", chatUC, voiceUC)
}

func TestChatGenUI(t *testing.T) {
	srv := newTestServer(t, &stubLLM{answer: "Hello| there"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/chat/genui", strings.NewReader(`{"message":"hi"}`))
	srv.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	gt.Equal(t, rec.Header().Get("Content-Type"), "text/event-stream")
	gt.S(t, body).Contains(`"type":"content"`)
	gt.S(t, body).Contains(`"type":"done"`)
	gt.Equal(t, strings.Count(body, "[DONE]"), 1)
}

func TestChatGenUIDoneCarriesThreadID(t *testing.T) {
	srv := newTestServer(t, &stubLLM{answer: "Hello"})

	t.Run("echoes the client thread id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/chat/genui",
			strings.NewReader(`{"threadId":"thread-1","message":"hi"}`))
		srv.Handler().ServeHTTP(rec, req)

		gt.S(t, rec.Body.String()).Contains(`"threadId":"thread-1"`)
	})

	t.Run("reveals a minted thread id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/chat/genui", strings.NewReader(`{"message":"hi"}`))
		srv.Handler().ServeHTTP(rec, req)

		var done struct {
			Type     string `json:"type"`
			ThreadID string `json:"threadId"`
		}
		for _, line := range strings.Split(rec.Body.String(), "\n") {
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok || data == "[DONE]" {
				continue
			}
			var event struct {
				Type     string `json:"type"`
				ThreadID string `json:"threadId"`
			}
			gt.NoError(t, json.Unmarshal([]byte(data), &event))
			if event.Type == "done" {
				done = event
			}
		}
		gt.Equal(t, done.Type, "done")
		gt.True(t, done.ThreadID != "")
	})
}

func TestChatGenUIError(t *testing.T) {
	srv := newTestServer(t, &stubLLM{fail: true})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/chat/genui", strings.NewReader(`{"message":"hi"}`))
	srv.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	gt.S(t, body).Contains(`"type":"error"`)
	gt.Equal(t, strings.Count(body, "[DONE]"), 1)
}

func TestChatGenUIBadBody(t *testing.T) {
	srv := newTestServer(t, &stubLLM{answer: "unused"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/chat/genui", strings.NewReader("not json"))
	srv.Handler().ServeHTTP(rec, req)

	gt.Equal(t, rec.Code, 400)
}

func TestVoiceCompletions(t *testing.T) {
	srv := newTestServer(t, &stubLLM{answer: "Lisbon is lovely."})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/voice/chat/completions?session=sess-1",
		strings.NewReader(`{"messages":[{"role":"user","content":"tell me about Lisbon"}]}`))
	srv.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	gt.S(t, body).Contains("chat.completion.chunk")
	gt.S(t, body).Contains("Lisbon")
	gt.S(t, body).Contains(`"finish_reason":"stop"`)
	gt.Equal(t, strings.Count(body, "[DONE]"), 1)
}

func TestVoiceCompletionsError(t *testing.T) {
	srv := newTestServer(t, &stubLLM{fail: true})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/voice/chat/completions",
		strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	srv.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	gt.S(t, body).Contains("sorry")
	gt.Equal(t, strings.Count(body, "[DONE]"), 1)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubLLM{answer: "unused"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	srv.Handler().ServeHTTP(rec, req)

	gt.Equal(t, rec.Code, 200)
	gt.S(t, rec.Body.String()).Contains("ok")
}
