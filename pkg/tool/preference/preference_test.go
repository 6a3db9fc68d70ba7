package preference_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/repository"
	"github.com/quest-labs/relo/pkg/tool"
	"github.com/quest-labs/relo/pkg/tool/preference"
)

func setup(t *testing.T) (*repository.Memory, tool.Tool) {
	repo := repository.NewMemory()
	x := preference.New()

	enabled, err := x.Init(context.Background(), &tool.Client{Repo: repo})
	gt.NoError(t, err)
	gt.True(t, enabled)

	return repo, x
}

func TestSavePreferenceNewFact(t *testing.T) {
	repo, x := setup(t)
	ctx := context.Background()
	userID := model.UserID("user-1")

	result, err := x.Execute(ctx, userID, "save_preference", map[string]any{
		"fact_type":  "destination",
		"fact_value": "Portugal",
	})
	gt.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	gt.True(t, ok)
	gt.Equal(t, resultMap["status"], "saved")

	fact, err := repo.GetFact(ctx, userID, model.FactTypeDestination)
	gt.NoError(t, err)
	gt.Equal(t, fact.Value, "Portugal")
	gt.Equal(t, fact.Source, "chat_tool")
}

func TestSavePreferenceChangedValueQueuesConfirmation(t *testing.T) {
	repo, x := setup(t)
	ctx := context.Background()
	userID := model.UserID("user-1")

	_, err := x.Execute(ctx, userID, "save_preference", map[string]any{
		"fact_type":  "destination",
		"fact_value": "Portugal",
	})
	gt.NoError(t, err)

	_, err = x.Execute(ctx, userID, "save_preference", map[string]any{
		"fact_type":  "destination",
		"fact_value": "Spain",
	})
	gt.NoError(t, err)

	// Committed fact untouched
	fact, err := repo.GetFact(ctx, userID, model.FactTypeDestination)
	gt.NoError(t, err)
	gt.Equal(t, fact.Value, "Portugal")

	pending, err := repo.ListPendingConfirmations(ctx, userID)
	gt.NoError(t, err)
	gt.A(t, pending).Length(1)
	gt.Equal(t, pending[0].OldValue, "Portugal")
	gt.Equal(t, pending[0].NewValue, "Spain")
}

func TestSavePreferenceDuplicateIsNoop(t *testing.T) {
	repo, x := setup(t)
	ctx := context.Background()
	userID := model.UserID("user-1")

	for i := 0; i < 2; i++ {
		_, err := x.Execute(ctx, userID, "save_preference", map[string]any{
			"fact_type":  "budget",
			"fact_value": "2000 EUR/month",
		})
		gt.NoError(t, err)
	}

	facts, err := repo.ListFacts(ctx, userID)
	gt.NoError(t, err)
	gt.A(t, facts).Length(1)

	pending, err := repo.ListPendingConfirmations(ctx, userID)
	gt.NoError(t, err)
	gt.A(t, pending).Length(0)
}

func TestSavePreferenceAnonymousSkipped(t *testing.T) {
	repo, x := setup(t)
	ctx := context.Background()

	result, err := x.Execute(ctx, model.AnonymousUserID, "save_preference", map[string]any{
		"fact_type":  "destination",
		"fact_value": "Portugal",
	})
	gt.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	gt.True(t, ok)
	gt.Equal(t, resultMap["status"], "skipped")

	facts, err := repo.ListFacts(ctx, model.AnonymousUserID)
	gt.NoError(t, err)
	gt.A(t, facts).Length(0)
}

func TestSavePreferenceInvalidType(t *testing.T) {
	_, x := setup(t)

	_, err := x.Execute(context.Background(), "user-1", "save_preference", map[string]any{
		"fact_type":  "favorite_color",
		"fact_value": "blue",
	})
	gt.Error(t, err)
}
