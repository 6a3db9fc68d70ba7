package model

import (
	"time"

	"github.com/google/uuid"
)

type ThreadID string

// NewThreadID generates a new unique ThreadID
func NewThreadID() ThreadID {
	return ThreadID(uuid.New().String())
}

// Thread is a keyed, in-memory conversation session: the accumulated
// message history plus the free-form context map the client has declared
// (destination, budget, timeline, ...). Threads are owned exclusively by
// the in-process store and are lost on restart.
type Thread struct {
	ID        ThreadID
	Messages  []Message
	Context   map[string]string
	UpdatedAt time.Time
}
