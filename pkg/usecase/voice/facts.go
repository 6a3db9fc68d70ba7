package voice

import (
	"context"
	"errors"
	"strings"

	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/policy"
	"github.com/quest-labs/relo/pkg/repository"
	"github.com/quest-labs/relo/pkg/utils/logging"
)

const factSource = "voice"

// runFactPipeline extracts fact candidates from the turn and routes
// each to auto-commit or the confirmation queue. Every stage is best
// effort: a failure here must never affect the answer already
// delivered.
func (x *UseCase) runFactPipeline(ctx context.Context, userID model.UserID, utterance, answer string) {
	if x.gemini == nil || userID.IsAnonymous() {
		return
	}
	logger := logging.From(ctx)

	existing, err := x.repo.ListFacts(ctx, userID)
	if err != nil {
		logger.Warn("failed to list facts for extraction", "user", userID, "error", err)
		existing = nil
	}

	candidates, err := x.extractFacts(ctx, utterance, answer, existing)
	if err != nil {
		logger.Warn("fact extraction failed", "user", userID, "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	x.routeCandidates(ctx, userID, utterance, answer, candidates)
	x.syncProfile(ctx, userID)
}

// routeCandidates applies the two-tier commit policy: a value change or
// a confirmation flag queues a PendingConfirmation and never touches
// the committed fact; a novel fact commits immediately; a duplicate is
// a logged no-op.
func (x *UseCase) routeCandidates(ctx context.Context, userID model.UserID, utterance, answer string, candidates []model.CandidateFact) {
	logger := logging.From(ctx)

	for _, cand := range candidates {
		if err := cand.Type.Validate(); err != nil {
			logger.Warn("extractor returned unknown fact type", "type", cand.Type, "error", err)
			continue
		}

		existing, err := x.repo.GetFact(ctx, userID, cand.Type)
		if err != nil && !errors.Is(err, repository.ErrFactNotFound) {
			logger.Warn("failed to look up existing fact", "user", userID, "type", cand.Type, "error", err)
			continue
		}

		isChange := existing != nil && existing.Value != cand.Value
		requireConfirmation := cand.RequiresConfirmation || isChange

		if existing != nil && !requireConfirmation {
			logger.Debug("duplicate fact skipped", "user", userID, "type", cand.Type, "value", cand.Value)
			continue
		}

		// the policy gates novel facts so operators can declare
		// critical types without redeploying
		if x.policy != nil && !requireConfirmation {
			decision, err := x.policy.Evaluate(ctx, &policy.FactInput{
				FactType:   cand.Type,
				Value:      cand.Value,
				Confidence: cand.Confidence,
				IsChange:   isChange,
			})
			if err != nil {
				logger.Warn("facts policy evaluation failed", "type", cand.Type, "error", err)
			} else {
				requireConfirmation = decision.RequireConfirmation
			}
		}

		switch {
		case requireConfirmation:
			confirmation := &model.PendingConfirmation{
				ID:            model.NewConfirmationID(),
				UserID:        userID,
				Type:          cand.Type,
				NewValue:      cand.Value,
				Source:        factSource,
				Confidence:    cand.Confidence,
				UserText:      utterance,
				AssistantText: answer,
				Status:        model.ConfirmationPending,
				CreatedAt:     x.now(),
			}
			if existing != nil {
				confirmation.OldValue = existing.Value
			}
			if err := x.repo.PutPendingConfirmation(ctx, confirmation); err != nil {
				logger.Warn("failed to queue confirmation", "user", userID, "type", cand.Type, "error", err)
				continue
			}
			logger.Info("fact queued for confirmation",
				"user", userID, "type", cand.Type,
				"old", confirmation.OldValue, "new", confirmation.NewValue)

		case existing == nil:
			now := x.now()
			fact := &model.Fact{
				ID:         model.NewFactID(),
				UserID:     userID,
				Type:       cand.Type,
				Value:      cand.Value,
				Confidence: cand.Confidence,
				Source:     factSource,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := x.repo.PutFact(ctx, fact); err != nil {
				logger.Warn("failed to commit fact", "user", userID, "type", cand.Type, "error", err)
				continue
			}
			logger.Info("fact auto-committed", "user", userID, "type", cand.Type, "value", cand.Value)
		}
	}
}

// syncProfile propagates committed facts into the denormalized profile
// fields and pushes the fact set to the memory and knowledge graph
// services. All of it is best effort.
func (x *UseCase) syncProfile(ctx context.Context, userID model.UserID) {
	logger := logging.From(ctx)

	facts, err := x.repo.ListFacts(ctx, userID)
	if err != nil {
		logger.Warn("failed to list facts for profile sync", "user", userID, "error", err)
		return
	}

	x.propagateProfile(ctx, userID, facts)

	for _, fact := range facts {
		if x.memory != nil {
			if err := x.memory.SyncFact(ctx, userID, fact); err != nil {
				logger.Warn("failed to sync fact to memory", "type", fact.Type, "error", err)
			}
		}
		if x.kg != nil {
			if err := x.kg.UpsertFact(ctx, userID, fact); err != nil {
				logger.Warn("failed to sync fact to knowledge graph", "type", fact.Type, "error", err)
			}
		}
	}
}

func (x *UseCase) propagateProfile(ctx context.Context, userID model.UserID, facts []*model.Fact) {
	logger := logging.From(ctx)

	user, err := x.repo.GetUser(ctx, userID)
	if err != nil {
		logger.Warn("failed to get user for propagation", "user", userID, "error", err)
		return
	}

	for _, fact := range facts {
		switch fact.Type {
		case model.FactTypeDestination:
			user.DestinationCountries = splitCountries(fact.Value)
		case model.FactTypeBudget:
			user.Budget = fact.Value
		case model.FactTypeTimeline:
			user.Timeline = fact.Value
		case model.FactTypeNationality:
			user.Nationality = fact.Value
		}
	}
	user.UpdatedAt = x.now()

	if err := x.repo.PutUser(ctx, user); err != nil {
		logger.Warn("failed to propagate profile", "user", userID, "error", err)
	}
}

func splitCountries(value string) []string {
	parts := strings.Split(value, ",")
	countries := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			countries = append(countries, trimmed)
		}
	}
	return countries
}
