package repository

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/quest-labs/relo/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionUsers         = "users"
	collectionFacts         = "facts"
	collectionConfirmations = "confirmations"
	collectionArticles      = "articles"

	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

// Firestore implements Repository using Cloud Firestore.
// Facts live in a subcollection keyed by fact type, so at most one
// committed fact per (user, type) holds structurally.
type Firestore struct {
	client *firestore.Client
}

// New creates a new Firestore repository
func New(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}

	return &Firestore{client: client}, nil
}

// Close releases the underlying client
func (r *Firestore) Close() error {
	if err := r.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}

func (r *Firestore) userDoc(id model.UserID) *firestore.DocumentRef {
	return r.client.Collection(collectionUsers).Doc(string(id))
}

// GetUser retrieves a user by ID
func (r *Firestore) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	doc, err := r.userDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrUserNotFound, "no such user", goerr.V("user_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get user", goerr.V("user_id", id))
	}

	var user model.User
	if err := doc.DataTo(&user); err != nil {
		return nil, goerr.Wrap(err, "failed to decode user", goerr.V("user_id", id))
	}

	return &user, nil
}

// PutUser creates or overwrites a user record
func (r *Firestore) PutUser(ctx context.Context, user *model.User) error {
	if _, err := r.userDoc(user.ID).Set(ctx, user); err != nil {
		return goerr.Wrap(err, "failed to put user", goerr.V("user_id", user.ID))
	}
	return nil
}

// GetFact retrieves the committed fact of one type for a user
func (r *Firestore) GetFact(ctx context.Context, userID model.UserID, factType model.FactType) (*model.Fact, error) {
	doc, err := r.userDoc(userID).Collection(collectionFacts).Doc(string(factType)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrFactNotFound, "no such fact",
				goerr.V("user_id", userID), goerr.V("fact_type", factType))
		}
		return nil, goerr.Wrap(err, "failed to get fact", goerr.V("user_id", userID))
	}

	var fact model.Fact
	if err := doc.DataTo(&fact); err != nil {
		return nil, goerr.Wrap(err, "failed to decode fact", goerr.V("user_id", userID))
	}

	return &fact, nil
}

// PutFact commits a fact, replacing any existing fact of the same type
func (r *Firestore) PutFact(ctx context.Context, fact *model.Fact) error {
	if err := fact.Type.Validate(); err != nil {
		return err
	}

	doc := r.userDoc(fact.UserID).Collection(collectionFacts).Doc(string(fact.Type))
	if _, err := doc.Set(ctx, fact); err != nil {
		return goerr.Wrap(err, "failed to put fact",
			goerr.V("user_id", fact.UserID), goerr.V("fact_type", fact.Type))
	}
	return nil
}

// ListFacts retrieves all committed facts for a user
func (r *Firestore) ListFacts(ctx context.Context, userID model.UserID) ([]*model.Fact, error) {
	iter := r.userDoc(userID).Collection(collectionFacts).Documents(ctx)
	defer iter.Stop()

	var facts []*model.Fact
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate facts", goerr.V("user_id", userID))
		}

		var fact model.Fact
		if err := doc.DataTo(&fact); err != nil {
			return nil, goerr.Wrap(err, "failed to decode fact", goerr.V("user_id", userID))
		}
		facts = append(facts, &fact)
	}

	return facts, nil
}

// PutPendingConfirmation stores a proposed fact mutation
func (r *Firestore) PutPendingConfirmation(ctx context.Context, confirmation *model.PendingConfirmation) error {
	doc := r.client.Collection(collectionConfirmations).Doc(string(confirmation.ID))
	if _, err := doc.Set(ctx, confirmation); err != nil {
		return goerr.Wrap(err, "failed to put confirmation", goerr.V("confirmation_id", confirmation.ID))
	}
	return nil
}

// GetPendingConfirmation retrieves a confirmation by ID
func (r *Firestore) GetPendingConfirmation(ctx context.Context, id model.ConfirmationID) (*model.PendingConfirmation, error) {
	doc, err := r.client.Collection(collectionConfirmations).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrConfirmationNotFound, "no such confirmation", goerr.V("confirmation_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get confirmation", goerr.V("confirmation_id", id))
	}

	var confirmation model.PendingConfirmation
	if err := doc.DataTo(&confirmation); err != nil {
		return nil, goerr.Wrap(err, "failed to decode confirmation", goerr.V("confirmation_id", id))
	}

	return &confirmation, nil
}

// ListPendingConfirmations retrieves unresolved confirmations for a user
func (r *Firestore) ListPendingConfirmations(ctx context.Context, userID model.UserID) ([]*model.PendingConfirmation, error) {
	iter := r.client.Collection(collectionConfirmations).
		Where("user_id", "==", string(userID)).
		Where("status", "==", string(model.ConfirmationPending)).
		OrderBy("created_at", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var confirmations []*model.PendingConfirmation
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate confirmations", goerr.V("user_id", userID))
		}

		var confirmation model.PendingConfirmation
		if err := doc.DataTo(&confirmation); err != nil {
			return nil, goerr.Wrap(err, "failed to decode confirmation", goerr.V("user_id", userID))
		}
		confirmations = append(confirmations, &confirmation)
	}

	return confirmations, nil
}

// ResolvePendingConfirmation marks a pending confirmation as accepted or
// rejected inside a transaction so concurrent resolutions cannot both win
func (r *Firestore) ResolvePendingConfirmation(ctx context.Context, id model.ConfirmationID, resolution model.ConfirmationStatus, resolvedAt time.Time) (*model.PendingConfirmation, error) {
	if err := resolution.Validate(); err != nil {
		return nil, err
	}
	if resolution == model.ConfirmationPending {
		return nil, goerr.Wrap(model.ErrInvalidConfirmationStatus, "resolution must be accepted or rejected")
	}

	docRef := r.client.Collection(collectionConfirmations).Doc(string(id))

	var resolved model.PendingConfirmation
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrConfirmationNotFound, "no such confirmation", goerr.V("confirmation_id", id))
			}
			return goerr.Wrap(err, "failed to get confirmation", goerr.V("confirmation_id", id))
		}

		if err := doc.DataTo(&resolved); err != nil {
			return goerr.Wrap(err, "failed to decode confirmation", goerr.V("confirmation_id", id))
		}

		if resolved.Status != model.ConfirmationPending {
			return goerr.Wrap(ErrAlreadyResolved, "confirmation is not pending",
				goerr.V("confirmation_id", id), goerr.V("status", resolved.Status))
		}

		resolved.Status = resolution
		resolved.ResolvedAt = &resolvedAt
		return tx.Set(docRef, &resolved)
	})
	if err != nil {
		return nil, err
	}

	return &resolved, nil
}

// PutArticle stores an article
func (r *Firestore) PutArticle(ctx context.Context, article *model.Article) error {
	doc := r.client.Collection(collectionArticles).Doc(article.ID)
	if _, err := doc.Set(ctx, article); err != nil {
		return goerr.Wrap(err, "failed to put article", goerr.V("article_id", article.ID))
	}
	return nil
}

// SearchArticles retrieves articles matching the input filters.
// Keyword matching runs client side over the fetched page since
// Firestore has no full-text query.
func (r *Firestore) SearchArticles(ctx context.Context, input *SearchArticlesInput) ([]*model.Article, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	query := r.client.Collection(collectionArticles).Query
	if input.CountryCode != "" {
		query = query.Where("country_code", "==", input.CountryCode)
	}
	if input.AppID != "" {
		query = query.Where("app_id", "==", input.AppID)
	}
	query = query.OrderBy("published_at", firestore.Desc).Limit(maxSearchLimit)

	iter := query.Documents(ctx)
	defer iter.Stop()

	keyword := strings.ToLower(input.Query)

	var articles []*model.Article
	for len(articles) < limit {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate articles")
		}

		var article model.Article
		if err := doc.DataTo(&article); err != nil {
			return nil, goerr.Wrap(err, "failed to decode article")
		}

		if keyword != "" &&
			!strings.Contains(strings.ToLower(article.Title), keyword) &&
			!strings.Contains(strings.ToLower(article.Excerpt), keyword) {
			continue
		}

		articles = append(articles, &article)
	}

	return articles, nil
}
