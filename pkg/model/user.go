package model

import "time"

type UserID string

// AnonymousUserID is the sentinel the voice platform sends when no user
// identity is available. Turns for this ID skip user resolution and the
// fact pipeline.
const AnonymousUserID UserID = "anonymous"

// IsAnonymous reports whether the ID is the anonymous sentinel or empty
func (id UserID) IsAnonymous() bool {
	return id == "" || id == AnonymousUserID
}

// User is a relocation assistant user record. The denormalized profile
// fields are fed by fact propagation and rendered into voice prompts.
type User struct {
	ID          UserID `firestore:"id" json:"id"`
	DisplayName string `firestore:"display_name" json:"display_name,omitempty"`

	Nationality          string   `firestore:"nationality" json:"nationality,omitempty"`
	DestinationCountries []string `firestore:"destination_countries" json:"destination_countries,omitempty"`
	Budget               string   `firestore:"budget" json:"budget,omitempty"`
	Timeline             string   `firestore:"timeline" json:"timeline,omitempty"`

	CreatedAt time.Time `firestore:"created_at" json:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at" json:"updated_at"`
}
