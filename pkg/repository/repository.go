package repository

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/quest-labs/relo/pkg/model"
)

var (
	ErrUserNotFound         = goerr.New("user not found")
	ErrFactNotFound         = goerr.New("fact not found")
	ErrConfirmationNotFound = goerr.New("confirmation not found")
	ErrAlreadyResolved      = goerr.New("confirmation already resolved")
)

// SearchArticlesInput filters article search. Zero-value fields are
// ignored; Limit defaults to 10 and is capped at 100.
type SearchArticlesInput struct {
	Query       string
	CountryCode string
	AppID       string
	Limit       int
}

// Repository defines the interface for user, fact and article persistence
type Repository interface {
	// GetUser retrieves a user by ID. Returns ErrUserNotFound when absent.
	GetUser(ctx context.Context, id model.UserID) (*model.User, error)

	// PutUser creates or overwrites a user record
	PutUser(ctx context.Context, user *model.User) error

	// GetFact retrieves the committed fact of one type for a user.
	// Returns ErrFactNotFound when absent.
	GetFact(ctx context.Context, userID model.UserID, factType model.FactType) (*model.Fact, error)

	// PutFact commits a fact, replacing any existing fact of the same type
	PutFact(ctx context.Context, fact *model.Fact) error

	// ListFacts retrieves all committed facts for a user
	ListFacts(ctx context.Context, userID model.UserID) ([]*model.Fact, error)

	// PutPendingConfirmation stores a proposed fact mutation
	PutPendingConfirmation(ctx context.Context, confirmation *model.PendingConfirmation) error

	// GetPendingConfirmation retrieves a confirmation by ID.
	// Returns ErrConfirmationNotFound when absent.
	GetPendingConfirmation(ctx context.Context, id model.ConfirmationID) (*model.PendingConfirmation, error)

	// ListPendingConfirmations retrieves unresolved confirmations for a
	// user, newest first
	ListPendingConfirmations(ctx context.Context, userID model.UserID) ([]*model.PendingConfirmation, error)

	// ResolvePendingConfirmation marks a pending confirmation as accepted
	// or rejected. Returns ErrAlreadyResolved when it is no longer pending.
	ResolvePendingConfirmation(ctx context.Context, id model.ConfirmationID, status model.ConfirmationStatus, resolvedAt time.Time) (*model.PendingConfirmation, error)

	// PutArticle stores an article
	PutArticle(ctx context.Context, article *model.Article) error

	// SearchArticles retrieves articles matching the input filters,
	// newest first
	SearchArticles(ctx context.Context, input *SearchArticlesInput) ([]*model.Article, error)

	// Close releases underlying connections
	Close() error
}
