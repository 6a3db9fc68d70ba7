package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var ErrInvalidConfirmationStatus = goerr.New("invalid confirmation status")

type ConfirmationID string

// NewConfirmationID generates a new unique ConfirmationID
func NewConfirmationID() ConfirmationID {
	return ConfirmationID(uuid.New().String())
}

type ConfirmationStatus string

const (
	ConfirmationPending  ConfirmationStatus = "pending"
	ConfirmationAccepted ConfirmationStatus = "accepted"
	ConfirmationRejected ConfirmationStatus = "rejected"
)

// Validate checks if the status is valid
func (s ConfirmationStatus) Validate() error {
	switch s {
	case ConfirmationPending, ConfirmationAccepted, ConfirmationRejected:
		return nil
	default:
		return goerr.Wrap(ErrInvalidConfirmationStatus, "unknown status", goerr.V("status", s))
	}
}

// PendingConfirmation is a proposed fact mutation waiting for human
// approval. The committed fact is never touched until the proposal is
// accepted; OldValue/NewValue and the originating turn text are kept for
// the audit trail even when rejected.
type PendingConfirmation struct {
	ID     ConfirmationID `firestore:"id" json:"id"`
	UserID UserID         `firestore:"user_id" json:"user_id"`

	Type       FactType `firestore:"type" json:"fact_type"`
	OldValue   string   `firestore:"old_value" json:"old_value,omitempty"`
	NewValue   string   `firestore:"new_value" json:"new_value"`
	Source     string   `firestore:"source" json:"source"`
	Confidence float64  `firestore:"confidence" json:"confidence"`

	// Raw turn text for audit
	UserText      string `firestore:"user_text" json:"user_text"`
	AssistantText string `firestore:"assistant_text" json:"assistant_text"`

	Status     ConfirmationStatus `firestore:"status" json:"status"`
	CreatedAt  time.Time          `firestore:"created_at" json:"created_at"`
	ResolvedAt *time.Time         `firestore:"resolved_at" json:"resolved_at,omitempty"`
}
