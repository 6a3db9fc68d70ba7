package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var ErrInvalidFactType = goerr.New("invalid fact type")

// FactType is the fixed vocabulary of attributes we learn about a user
// from conversation.
type FactType string

const (
	FactTypeDestination  FactType = "destination"
	FactTypeBudget       FactType = "budget"
	FactTypeTimeline     FactType = "timeline"
	FactTypeNationality  FactType = "nationality"
	FactTypeFamilyStatus FactType = "family_status"
	FactTypeProfession   FactType = "profession"
	FactTypeLanguage     FactType = "language"
)

// FactTypes lists all known fact types in a fixed order
func FactTypes() []FactType {
	return []FactType{
		FactTypeDestination,
		FactTypeBudget,
		FactTypeTimeline,
		FactTypeNationality,
		FactTypeFamilyStatus,
		FactTypeProfession,
		FactTypeLanguage,
	}
}

// Validate checks if the fact type is part of the known vocabulary
func (t FactType) Validate() error {
	for _, known := range FactTypes() {
		if t == known {
			return nil
		}
	}
	return goerr.Wrap(ErrInvalidFactType, "unknown fact type", goerr.V("type", t))
}

type FactID string

// NewFactID generates a new unique FactID
func NewFactID() FactID {
	return FactID(uuid.New().String())
}

// Fact is a single typed attribute learned about a user. At most one
// committed fact exists per (user, type); value changes go through the
// confirmation queue instead of overwriting.
type Fact struct {
	ID         FactID   `firestore:"id" json:"id"`
	UserID     UserID   `firestore:"user_id" json:"user_id"`
	Type       FactType `firestore:"type" json:"type"`
	Value      string   `firestore:"value" json:"value"`
	Confidence float64  `firestore:"confidence" json:"confidence"`
	Source     string   `firestore:"source" json:"source"`

	CreatedAt time.Time `firestore:"created_at" json:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at" json:"updated_at"`
}

// CandidateFact is one extractor-proposed fact for a single turn, before
// the auto-commit vs. confirmation routing decision has been made.
type CandidateFact struct {
	Type                 FactType `json:"fact_type"`
	Value                string   `json:"fact_value"`
	Confidence           float64  `json:"confidence"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
}
