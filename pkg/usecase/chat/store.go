package chat

import (
	"context"
	"sync"
	"time"

	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/utils/logging"
)

const (
	defaultTTL           = 24 * time.Hour
	defaultSweepInterval = time.Hour
)

type threadState struct {
	messages  []model.Message
	context   map[string]string
	updatedAt time.Time
}

// Store holds conversation threads in memory. Threads are evicted by a
// periodic sweep once their last update is older than the TTL. State is
// lost on process restart, which is acceptable for this cache.
type Store struct {
	mu      sync.Mutex
	threads map[model.ThreadID]*threadState

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	stop chan struct{}
	done chan struct{}
}

type StoreOption func(*Store)

// WithTTL overrides the thread eviction TTL
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithSweepInterval overrides the interval between automatic sweeps
func WithSweepInterval(interval time.Duration) StoreOption {
	return func(s *Store) {
		s.sweepInterval = interval
	}
}

// WithClock injects a clock for tests
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a thread store
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		threads:       make(map[model.ThreadID]*threadState),
		ttl:           defaultTTL,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start launches the background sweep ticker. Call Stop to release it.
func (s *Store) Start(ctx context.Context) {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					logging.From(ctx).Debug("swept stale threads", "count", n)
				}
			}
		}
	}()
}

// Stop terminates the sweep ticker and waits for it to exit
func (s *Store) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
}

func (s *Store) getOrCreate(id model.ThreadID) *threadState {
	t, ok := s.threads[id]
	if !ok {
		t = &threadState{context: make(map[string]string)}
		s.threads[id] = t
	}
	return t
}

// Append adds a message to the thread, creating it if absent
func (s *Store) Append(id model.ThreadID, msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.getOrCreate(id)
	t.messages = append(t.messages, msg)
	t.updatedAt = s.now()
}

// SetContext replaces the thread's context map wholesale, creating the
// thread if absent
func (s *Store) SetContext(id model.ThreadID, context map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.getOrCreate(id)
	t.context = make(map[string]string, len(context))
	for k, v := range context {
		t.context[k] = v
	}
	t.updatedAt = s.now()
}

// SetContextValue sets a single context key, creating the thread if
// absent
func (s *Store) SetContextValue(id model.ThreadID, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.getOrCreate(id)
	t.context[key] = value
	t.updatedAt = s.now()
}

// BuildPromptMessages returns the system message rendered from the
// thread context followed by the thread history. A missing thread is
// treated as an empty thread, not an error.
func (s *Store) BuildPromptMessages(id model.ThreadID) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[id]
	if !ok {
		return []model.Message{systemMessage(nil)}
	}

	msgs := make([]model.Message, 0, len(t.messages)+1)
	msgs = append(msgs, systemMessage(t.context))
	msgs = append(msgs, t.messages...)
	return msgs
}

// Clear removes the thread entirely
func (s *Store) Clear(id model.ThreadID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.threads, id)
}

// Sweep deletes every thread whose last update is older than the TTL
// and returns the number of deleted threads
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var deleted int
	for id, t := range s.threads {
		if now.Sub(t.updatedAt) > s.ttl {
			delete(s.threads, id)
			deleted++
		}
	}
	return deleted
}
