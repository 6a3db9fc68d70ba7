package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/usecase/chat"
	"github.com/quest-labs/relo/pkg/usecase/voice"
	"github.com/quest-labs/relo/pkg/utils/logging"
)

// Server exposes the chat and voice pipelines over HTTP
type Server struct {
	chat  *chat.UseCase
	voice *voice.UseCase
	srv   *http.Server
}

// New creates the HTTP server
func New(addr string, chatUC *chat.UseCase, voiceUC *voice.UseCase) *Server {
	s := &Server{
		chat:  chatUC,
		voice: voiceUC,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/genui", s.handleChatGenUI)
	mux.HandleFunc("POST /voice/chat/completions", s.handleVoiceCompletions)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until the listener fails or Shutdown is called
func (s *Server) Run(ctx context.Context) error {
	logging.From(ctx).Info("starting server", "addr", s.srv.Addr)

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return goerr.Wrap(err, "server failed")
	}
	return nil
}

// Shutdown stops accepting connections and drains detached background
// work so learned facts are not lost
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return goerr.Wrap(err, "failed to shutdown server")
	}
	if s.voice != nil {
		s.voice.Wait()
	}
	return nil
}

type chatRequest struct {
	ThreadID string            `json:"threadId"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context"`
}

func (s *Server) handleChatGenUI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	threadID := model.ThreadID(req.ThreadID)
	if threadID == "" {
		threadID = model.NewThreadID()
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// HandleTurn emits the error event and the terminal marker itself
	_ = s.chat.HandleTurn(ctx, chat.TurnInput{
		ThreadID:    threadID,
		UserMessage: req.Message,
		Context:     req.Context,
	}, &chatEmitter{sse: sse, threadID: threadID})
}

type voiceRequest struct {
	Messages []voice.InboundMessage `json:"messages"`
	User     string                 `json:"user"`
}

func (s *Server) handleVoiceCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.From(ctx)

	var req voiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := model.UserID(req.User)
	if userID == "" {
		userID = model.AnonymousUserID
	}

	if session := r.URL.Query().Get("session"); session != "" {
		logger.Debug("voice turn", "session", session, "user", userID)
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	_ = s.voice.HandleVoiceTurn(ctx, userID, req.Messages, newVoiceEmitter(sse))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
