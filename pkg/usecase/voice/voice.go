package voice

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/quest-labs/relo/pkg/adapter"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/policy"
	"github.com/quest-labs/relo/pkg/repository"
	"github.com/quest-labs/relo/pkg/service/kg"
	"github.com/quest-labs/relo/pkg/service/memory"
	"github.com/quest-labs/relo/pkg/utils/logging"
)

const (
	defaultWordDelay      = 50 * time.Millisecond
	defaultArticleLimit   = 3
	defaultMemoryTopK     = 5
	defaultKnowledgeLimit = 10
)

// Emitter receives the user-visible chunks of one voice turn
type Emitter interface {
	Content(text string) error
	Done() error
}

// InboundMessage is one entry of the conversation history sent by the
// voice platform. Content is either a JSON string or a list of content
// blocks.
type InboundMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// UseCase produces one spoken-style answer per inbound user utterance,
// with personalization and durable learning as side effects
type UseCase struct {
	repo    repository.Repository
	llm     adapter.OpenAI
	gemini  adapter.Gemini
	kg      kg.Service
	memory  memory.Service
	storage adapter.Storage
	policy  *policy.Engine

	articleLimit int
	wordDelay    time.Duration
	sleep        func(time.Duration)
	pick         func(n int) int
	now          func() time.Time

	bg sync.WaitGroup
}

// NewInput contains the collaborators of the voice pipeline. Repo and
// LLM are required; the rest degrade to empty context sources or
// skipped side effects when nil.
type NewInput struct {
	Repo    repository.Repository
	LLM     adapter.OpenAI
	Gemini  adapter.Gemini
	KG      kg.Service
	Memory  memory.Service
	Storage adapter.Storage
	Policy  *policy.Engine
}

type Option func(*UseCase)

// WithWordDelay overrides the inter-word pacing delay
func WithWordDelay(d time.Duration) Option {
	return func(x *UseCase) {
		x.wordDelay = d
	}
}

// WithSleeper injects the pacing sleep function for tests
func WithSleeper(sleep func(time.Duration)) Option {
	return func(x *UseCase) {
		x.sleep = sleep
	}
}

// WithFillerPicker injects the filler phrase selector for tests
func WithFillerPicker(pick func(n int) int) Option {
	return func(x *UseCase) {
		x.pick = pick
	}
}

// WithClock injects a clock for tests
func WithClock(now func() time.Time) Option {
	return func(x *UseCase) {
		x.now = now
	}
}

// WithArticleLimit overrides how many articles are gathered per turn
func WithArticleLimit(limit int) Option {
	return func(x *UseCase) {
		x.articleLimit = limit
	}
}

// New creates the voice turn usecase
func New(input NewInput, opts ...Option) *UseCase {
	x := &UseCase{
		repo:    input.Repo,
		llm:     input.LLM,
		gemini:  input.Gemini,
		kg:      input.KG,
		memory:  input.Memory,
		storage: input.Storage,
		policy:  input.Policy,

		articleLimit: defaultArticleLimit,
		wordDelay:    defaultWordDelay,
		sleep:        time.Sleep,
		pick:         pickRandom,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(x)
	}

	return x
}

// Wait blocks until all detached background work has finished. Called
// on graceful shutdown so learned facts are not lost mid-flight.
func (x *UseCase) Wait() {
	x.bg.Wait()
}

// HandleVoiceTurn runs one voice turn. The stream always terminates
// with the completion marker, on every path.
func (x *UseCase) HandleVoiceTurn(ctx context.Context, userID model.UserID, messages []InboundMessage, emitter Emitter) error {
	logger := logging.From(ctx)

	err := x.handleTurn(ctx, userID, messages, emitter)
	if err != nil {
		logger.Error("voice turn failed", "user", userID, "error", err)
		if emitErr := emitter.Content("I'm sorry, I'm having trouble answering right now. Please try again."); emitErr != nil {
			logger.Warn("failed to emit apology", "error", emitErr)
		}
	}

	if doneErr := emitter.Done(); doneErr != nil {
		logger.Warn("failed to emit done", "error", doneErr)
	}
	return err
}

func (x *UseCase) handleTurn(ctx context.Context, userID model.UserID, messages []InboundMessage, emitter Emitter) error {
	logger := logging.From(ctx)

	utterance, ok := lastUserUtterance(messages)
	if !ok {
		logger.Warn("no user utterance found in history", "user", userID)
		return emitter.Content("")
	}

	user := x.resolveUser(ctx, userID)
	vc := x.gatherContext(ctx, userID, user, utterance)

	if isComplexQuery(utterance) {
		if err := emitter.Content(fillerPhrases[x.pick(len(fillerPhrases))] + " "); err != nil {
			return goerr.Wrap(err, "failed to emit filler phrase")
		}
	}

	answer, err := x.generate(ctx, vc, messages)
	if err != nil {
		return err
	}

	if err := x.emitWords(answer, emitter); err != nil {
		return err
	}

	x.spawnBackground(ctx, userID, utterance, answer)
	return nil
}

// resolveUser loads or creates the user record. Anonymous turns and
// lookup failures yield a nil profile, never an aborted turn.
func (x *UseCase) resolveUser(ctx context.Context, userID model.UserID) *model.User {
	if userID.IsAnonymous() {
		return nil
	}
	logger := logging.From(ctx)

	user, err := x.repo.GetUser(ctx, userID)
	if err == nil {
		return user
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		logger.Warn("failed to get user", "user", userID, "error", err)
		return nil
	}

	now := x.now()
	user = &model.User{ID: userID, CreatedAt: now, UpdatedAt: now}
	if err := x.repo.PutUser(ctx, user); err != nil {
		logger.Warn("failed to create user", "user", userID, "error", err)
		return nil
	}
	return user
}

// gatherContext fetches the four context sources concurrently. Each
// fetch is independently fault tolerant: a failure is logged and its
// section stays empty, since partial context beats no answer.
func (x *UseCase) gatherContext(ctx context.Context, userID model.UserID, user *model.User, utterance string) *model.VoiceContext {
	logger := logging.From(ctx)
	vc := &model.VoiceContext{Profile: user}

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		if userID.IsAnonymous() {
			return
		}
		facts, err := x.repo.ListFacts(ctx, userID)
		if err != nil {
			logger.Warn("failed to list facts", "user", userID, "error", err)
			return
		}
		vc.Facts = facts
	}()

	go func() {
		defer wg.Done()
		if x.kg == nil || userID.IsAnonymous() {
			return
		}
		knowledge, err := x.kg.RelatedKnowledge(ctx, userID, utterance, defaultKnowledgeLimit)
		if err != nil {
			logger.Warn("failed to search knowledge graph", "user", userID, "error", err)
			return
		}
		vc.KnowledgeGraph = knowledge
	}()

	go func() {
		defer wg.Done()
		if x.memory == nil || userID.IsAnonymous() {
			return
		}
		recalled, err := x.memory.Recall(ctx, userID, utterance, defaultMemoryTopK)
		if err != nil {
			logger.Warn("failed to recall memory", "user", userID, "error", err)
			return
		}
		vc.Memory = strings.Join(recalled, "\n")
	}()

	go func() {
		defer wg.Done()
		articles, err := x.repo.SearchArticles(ctx, &repository.SearchArticlesInput{
			Query: utterance,
			Limit: x.articleLimit,
		})
		if err != nil {
			logger.Warn("failed to search articles", "error", err)
			return
		}
		vc.Articles = articles
	}()

	wg.Wait()
	return vc
}

// generate runs one non-streaming completion over the conversation
// history with the assembled context as system prompt
func (x *UseCase) generate(ctx context.Context, vc *model.VoiceContext, messages []InboundMessage) (string, error) {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	chatMessages = append(chatMessages, openai.ChatCompletionMessage{
		Role:    string(model.RoleSystem),
		Content: buildVoicePrompt(vc),
	})
	for _, m := range messages {
		text, ok := messageText(m)
		if !ok || text == "" {
			continue
		}
		// the assembled prompt is the only system message; inbound
		// roles outside user/assistant are clamped to user
		role := m.Role
		if role != string(model.RoleUser) && role != string(model.RoleAssistant) {
			role = string(model.RoleUser)
		}
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    role,
			Content: text,
		})
	}

	resp, err := x.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Messages: chatMessages,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate voice answer")
	}
	if len(resp.Choices) == 0 {
		return "", goerr.New("empty completion response")
	}

	return resp.Choices[0].Message.Content, nil
}

// emitWords re-chunks the completed answer into whitespace-delimited
// tokens and emits them one at a time with a fixed delay, producing
// natural speech pacing independent of how the model streamed
func (x *UseCase) emitWords(answer string, emitter Emitter) error {
	for i, word := range strings.Fields(answer) {
		if i > 0 {
			x.sleep(x.wordDelay)
		}
		if err := emitter.Content(word + " "); err != nil {
			return goerr.Wrap(err, "failed to emit word")
		}
	}
	return nil
}

// spawnBackground runs memory storage, transcript archival and the fact
// pipeline detached from the user-visible stream. Failures are logged
// and swallowed; the WaitGroup lets the server drain on shutdown.
func (x *UseCase) spawnBackground(ctx context.Context, userID model.UserID, utterance, answer string) {
	bgCtx := logging.With(context.Background(), logging.From(ctx))

	x.bg.Add(1)
	go func() {
		defer x.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.From(bgCtx).Error("background pipeline panicked", "recover", r)
			}
		}()

		x.storeTurnMemory(bgCtx, userID, utterance, answer)
		x.archiveTranscript(bgCtx, userID, utterance, answer)
		x.runFactPipeline(bgCtx, userID, utterance, answer)
	}()
}

func (x *UseCase) storeTurnMemory(ctx context.Context, userID model.UserID, utterance, answer string) {
	if x.memory == nil || userID.IsAnonymous() {
		return
	}
	content := "User: " + utterance + "\nAssistant: " + answer
	if err := x.memory.Store(ctx, userID, content); err != nil {
		logging.From(ctx).Warn("failed to store turn memory", "user", userID, "error", err)
	}
}

type transcript struct {
	UserID    model.UserID `json:"user_id"`
	User      string       `json:"user"`
	Assistant string       `json:"assistant"`
	At        time.Time    `json:"at"`
}

func (x *UseCase) archiveTranscript(ctx context.Context, userID model.UserID, utterance, answer string) {
	if x.storage == nil {
		return
	}
	logger := logging.From(ctx)

	at := x.now()
	writer, err := x.storage.Put(ctx, adapter.TranscriptKey(userID, at))
	if err != nil {
		logger.Warn("failed to open transcript writer", "user", userID, "error", err)
		return
	}

	data, err := json.Marshal(transcript{
		UserID:    userID,
		User:      utterance,
		Assistant: answer,
		At:        at,
	})
	if err != nil {
		logger.Warn("failed to marshal transcript", "user", userID, "error", err)
		_ = writer.Close()
		return
	}

	if _, err := writer.Write(data); err != nil {
		logger.Warn("failed to write transcript", "user", userID, "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Warn("failed to close transcript writer", "user", userID, "error", err)
	}
}

// lastUserUtterance scans backward for the most recent user message and
// flattens its content. Both plain-string and block-structured content
// are supported.
func lastUserUtterance(messages []InboundMessage) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != string(model.RoleUser) {
			continue
		}
		if text, ok := messageText(messages[i]); ok && text != "" {
			return text, true
		}
	}
	return "", false
}

func messageText(m InboundMessage) (string, bool) {
	if len(m.Content) == 0 {
		return "", false
	}

	var plain string
	if err := json.Unmarshal(m.Content, &plain); err == nil {
		return plain, true
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return "", false
	}

	var parts []string
	for _, b := range blocks {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, " "), true
}
