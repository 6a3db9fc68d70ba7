package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/quest-labs/relo/pkg/model"
)

// Memory implements Repository with in-process maps. Used for tests and
// for running without GCP credentials.
type Memory struct {
	mu            sync.RWMutex
	users         map[model.UserID]*model.User
	facts         map[model.UserID]map[model.FactType]*model.Fact
	confirmations map[model.ConfirmationID]*model.PendingConfirmation
	articles      map[string]*model.Article
}

// NewMemory creates a new in-memory repository
func NewMemory() *Memory {
	return &Memory{
		users:         make(map[model.UserID]*model.User),
		facts:         make(map[model.UserID]map[model.FactType]*model.Fact),
		confirmations: make(map[model.ConfirmationID]*model.PendingConfirmation),
		articles:      make(map[string]*model.Article),
	}
}

// Close is a no-op for the in-memory repository
func (r *Memory) Close() error { return nil }

// GetUser retrieves a user by ID
func (r *Memory) GetUser(_ context.Context, id model.UserID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, goerr.Wrap(ErrUserNotFound, "no such user", goerr.V("user_id", id))
	}
	copied := *user
	return &copied, nil
}

// PutUser creates or overwrites a user record
func (r *Memory) PutUser(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *user
	r.users[user.ID] = &copied
	return nil
}

// GetFact retrieves the committed fact of one type for a user
func (r *Memory) GetFact(_ context.Context, userID model.UserID, factType model.FactType) (*model.Fact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fact, ok := r.facts[userID][factType]
	if !ok {
		return nil, goerr.Wrap(ErrFactNotFound, "no such fact",
			goerr.V("user_id", userID), goerr.V("fact_type", factType))
	}
	copied := *fact
	return &copied, nil
}

// PutFact commits a fact, replacing any existing fact of the same type
func (r *Memory) PutFact(_ context.Context, fact *model.Fact) error {
	if err := fact.Type.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.facts[fact.UserID] == nil {
		r.facts[fact.UserID] = make(map[model.FactType]*model.Fact)
	}
	copied := *fact
	r.facts[fact.UserID][fact.Type] = &copied
	return nil
}

// ListFacts retrieves all committed facts for a user
func (r *Memory) ListFacts(_ context.Context, userID model.UserID) ([]*model.Fact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var facts []*model.Fact
	for _, factType := range model.FactTypes() {
		if fact, ok := r.facts[userID][factType]; ok {
			copied := *fact
			facts = append(facts, &copied)
		}
	}
	return facts, nil
}

// PutPendingConfirmation stores a proposed fact mutation
func (r *Memory) PutPendingConfirmation(_ context.Context, confirmation *model.PendingConfirmation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *confirmation
	r.confirmations[confirmation.ID] = &copied
	return nil
}

// GetPendingConfirmation retrieves a confirmation by ID
func (r *Memory) GetPendingConfirmation(_ context.Context, id model.ConfirmationID) (*model.PendingConfirmation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	confirmation, ok := r.confirmations[id]
	if !ok {
		return nil, goerr.Wrap(ErrConfirmationNotFound, "no such confirmation", goerr.V("confirmation_id", id))
	}
	copied := *confirmation
	return &copied, nil
}

// ListPendingConfirmations retrieves unresolved confirmations for a user
func (r *Memory) ListPendingConfirmations(_ context.Context, userID model.UserID) ([]*model.PendingConfirmation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var confirmations []*model.PendingConfirmation
	for _, c := range r.confirmations {
		if c.UserID != userID || c.Status != model.ConfirmationPending {
			continue
		}
		copied := *c
		confirmations = append(confirmations, &copied)
	}

	sort.Slice(confirmations, func(i, j int) bool {
		return confirmations[i].CreatedAt.After(confirmations[j].CreatedAt)
	})

	return confirmations, nil
}

// ResolvePendingConfirmation marks a pending confirmation as accepted or rejected
func (r *Memory) ResolvePendingConfirmation(_ context.Context, id model.ConfirmationID, resolution model.ConfirmationStatus, resolvedAt time.Time) (*model.PendingConfirmation, error) {
	if err := resolution.Validate(); err != nil {
		return nil, err
	}
	if resolution == model.ConfirmationPending {
		return nil, goerr.Wrap(model.ErrInvalidConfirmationStatus, "resolution must be accepted or rejected")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	confirmation, ok := r.confirmations[id]
	if !ok {
		return nil, goerr.Wrap(ErrConfirmationNotFound, "no such confirmation", goerr.V("confirmation_id", id))
	}
	if confirmation.Status != model.ConfirmationPending {
		return nil, goerr.Wrap(ErrAlreadyResolved, "confirmation is not pending",
			goerr.V("confirmation_id", id), goerr.V("status", confirmation.Status))
	}

	confirmation.Status = resolution
	confirmation.ResolvedAt = &resolvedAt

	copied := *confirmation
	return &copied, nil
}

// PutArticle stores an article
func (r *Memory) PutArticle(_ context.Context, article *model.Article) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *article
	r.articles[article.ID] = &copied
	return nil
}

// SearchArticles retrieves articles matching the input filters
func (r *Memory) SearchArticles(_ context.Context, input *SearchArticlesInput) ([]*model.Article, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	keyword := strings.ToLower(input.Query)

	var articles []*model.Article
	for _, a := range r.articles {
		if input.CountryCode != "" && a.CountryCode != input.CountryCode {
			continue
		}
		if input.AppID != "" && a.AppID != input.AppID {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(a.Title), keyword) &&
			!strings.Contains(strings.ToLower(a.Excerpt), keyword) {
			continue
		}
		copied := *a
		articles = append(articles, &copied)
	}

	sort.Slice(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})

	if len(articles) > limit {
		articles = articles[:limit]
	}

	return articles, nil
}
