package model

import "time"

// Article is a published guide from one of the network sites, surfaced
// to the assistant as supporting context.
type Article struct {
	ID          string    `firestore:"id" json:"id"`
	AppID       string    `firestore:"app_id" json:"app_id"`
	Title       string    `firestore:"title" json:"title"`
	Excerpt     string    `firestore:"excerpt" json:"excerpt"`
	CountryCode string    `firestore:"country_code" json:"country_code,omitempty"`
	PublishedAt time.Time `firestore:"published_at" json:"published_at"`
}
