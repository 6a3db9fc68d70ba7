package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/repository"
)

func TestMemoryUser(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	t.Run("get missing user", func(t *testing.T) {
		_, err := repo.GetUser(ctx, "nobody")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, repository.ErrUserNotFound))
	})

	t.Run("put and get", func(t *testing.T) {
		user := &model.User{
			ID:          "user-1",
			DisplayName: "Ana",
			Nationality: "Brazilian",
			CreatedAt:   time.Now(),
		}
		gt.NoError(t, repo.PutUser(ctx, user))

		retrieved, err := repo.GetUser(ctx, "user-1")
		gt.NoError(t, err)
		gt.Equal(t, retrieved.DisplayName, "Ana")
		gt.Equal(t, retrieved.Nationality, "Brazilian")
	})

	t.Run("stored copy is isolated from caller", func(t *testing.T) {
		user := &model.User{ID: "user-2", DisplayName: "Ben"}
		gt.NoError(t, repo.PutUser(ctx, user))

		user.DisplayName = "mutated"
		retrieved, err := repo.GetUser(ctx, "user-2")
		gt.NoError(t, err)
		gt.Equal(t, retrieved.DisplayName, "Ben")
	})
}

func TestMemoryFacts(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()
	userID := model.UserID("user-1")

	t.Run("get missing fact", func(t *testing.T) {
		_, err := repo.GetFact(ctx, userID, model.FactTypeBudget)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, repository.ErrFactNotFound))
	})

	t.Run("invalid fact type rejected", func(t *testing.T) {
		err := repo.PutFact(ctx, &model.Fact{
			ID:     model.NewFactID(),
			UserID: userID,
			Type:   model.FactType("favorite_color"),
			Value:  "blue",
		})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrInvalidFactType))
	})

	t.Run("at most one fact per type", func(t *testing.T) {
		first := &model.Fact{
			ID:     model.NewFactID(),
			UserID: userID,
			Type:   model.FactTypeDestination,
			Value:  "Portugal",
		}
		gt.NoError(t, repo.PutFact(ctx, first))

		second := &model.Fact{
			ID:     model.NewFactID(),
			UserID: userID,
			Type:   model.FactTypeDestination,
			Value:  "Spain",
		}
		gt.NoError(t, repo.PutFact(ctx, second))

		facts, err := repo.ListFacts(ctx, userID)
		gt.NoError(t, err)
		gt.A(t, facts).Length(1)
		gt.Equal(t, facts[0].Value, "Spain")
	})

	t.Run("list returns all types", func(t *testing.T) {
		gt.NoError(t, repo.PutFact(ctx, &model.Fact{
			ID:     model.NewFactID(),
			UserID: userID,
			Type:   model.FactTypeBudget,
			Value:  "2500 EUR/month",
		}))

		facts, err := repo.ListFacts(ctx, userID)
		gt.NoError(t, err)
		gt.A(t, facts).Length(2)
	})
}

func TestMemoryConfirmations(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()
	userID := model.UserID("user-1")

	put := func(t *testing.T, createdAt time.Time) *model.PendingConfirmation {
		confirmation := &model.PendingConfirmation{
			ID:        model.NewConfirmationID(),
			UserID:    userID,
			Type:      model.FactTypeNationality,
			NewValue:  "German",
			Status:    model.ConfirmationPending,
			CreatedAt: createdAt,
		}
		gt.NoError(t, repo.PutPendingConfirmation(ctx, confirmation))
		return confirmation
	}

	t.Run("list newest first, pending only", func(t *testing.T) {
		now := time.Now()
		older := put(t, now.Add(-time.Hour))
		newer := put(t, now)

		_, err := repo.ResolvePendingConfirmation(ctx, older.ID, model.ConfirmationRejected, now)
		gt.NoError(t, err)

		pending, err := repo.ListPendingConfirmations(ctx, userID)
		gt.NoError(t, err)
		gt.A(t, pending).Length(1)
		gt.Equal(t, pending[0].ID, newer.ID)
	})

	t.Run("resolve is one shot", func(t *testing.T) {
		confirmation := put(t, time.Now())

		resolved, err := repo.ResolvePendingConfirmation(ctx, confirmation.ID, model.ConfirmationAccepted, time.Now())
		gt.NoError(t, err)
		gt.Equal(t, resolved.Status, model.ConfirmationAccepted)
		gt.V(t, resolved.ResolvedAt).NotNil()

		_, err = repo.ResolvePendingConfirmation(ctx, confirmation.ID, model.ConfirmationRejected, time.Now())
		gt.Error(t, err)
		gt.True(t, errors.Is(err, repository.ErrAlreadyResolved))
	})

	t.Run("resolve with pending status rejected", func(t *testing.T) {
		confirmation := put(t, time.Now())

		_, err := repo.ResolvePendingConfirmation(ctx, confirmation.ID, model.ConfirmationPending, time.Now())
		gt.Error(t, err)
	})

	t.Run("resolve missing confirmation", func(t *testing.T) {
		_, err := repo.ResolvePendingConfirmation(ctx, model.ConfirmationID("missing"), model.ConfirmationAccepted, time.Now())
		gt.Error(t, err)
		gt.True(t, errors.Is(err, repository.ErrConfirmationNotFound))
	})
}

func TestMemorySearchArticles(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	now := time.Now()
	articles := []*model.Article{
		{ID: "a1", AppID: "portugal-guide", Title: "D7 Visa Requirements", Excerpt: "Passive income visa for Portugal", CountryCode: "PT", PublishedAt: now.Add(-2 * time.Hour)},
		{ID: "a2", AppID: "portugal-guide", Title: "Cost of Living in Lisbon", Excerpt: "Rent, groceries and transport", CountryCode: "PT", PublishedAt: now.Add(-time.Hour)},
		{ID: "a3", AppID: "spain-guide", Title: "Non-Lucrative Visa Spain", Excerpt: "Requirements and timeline", CountryCode: "ES", PublishedAt: now},
	}
	for _, a := range articles {
		gt.NoError(t, repo.PutArticle(ctx, a))
	}

	t.Run("filter by country", func(t *testing.T) {
		results, err := repo.SearchArticles(ctx, &repository.SearchArticlesInput{CountryCode: "PT"})
		gt.NoError(t, err)
		gt.A(t, results).Length(2)
		// Newest first
		gt.Equal(t, results[0].ID, "a2")
	})

	t.Run("keyword over title and excerpt", func(t *testing.T) {
		results, err := repo.SearchArticles(ctx, &repository.SearchArticlesInput{Query: "visa"})
		gt.NoError(t, err)
		gt.A(t, results).Length(2)
	})

	t.Run("limit", func(t *testing.T) {
		results, err := repo.SearchArticles(ctx, &repository.SearchArticlesInput{Limit: 1})
		gt.NoError(t, err)
		gt.A(t, results).Length(1)
		gt.Equal(t, results[0].ID, "a3")
	})

	t.Run("no match", func(t *testing.T) {
		results, err := repo.SearchArticles(ctx, &repository.SearchArticlesInput{Query: "taxes", CountryCode: "ES"})
		gt.NoError(t, err)
		gt.A(t, results).Length(0)
	})
}
