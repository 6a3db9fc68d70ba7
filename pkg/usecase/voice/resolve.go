package voice

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/quest-labs/relo/pkg/model"
)

// Resolve applies or discards a pending fact mutation. Accepting
// commits the proposed value as the active fact and syncs the profile;
// rejecting only records the resolution, keeping the audit trail.
func (x *UseCase) Resolve(ctx context.Context, id model.ConfirmationID, accept bool) (*model.PendingConfirmation, error) {
	status := model.ConfirmationRejected
	if accept {
		status = model.ConfirmationAccepted
	}

	confirmation, err := x.repo.ResolvePendingConfirmation(ctx, id, status, x.now())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve confirmation", goerr.V("id", id))
	}

	if !accept {
		return confirmation, nil
	}

	now := x.now()
	fact := &model.Fact{
		ID:         model.NewFactID(),
		UserID:     confirmation.UserID,
		Type:       confirmation.Type,
		Value:      confirmation.NewValue,
		Confidence: confirmation.Confidence,
		Source:     confirmation.Source,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := x.repo.PutFact(ctx, fact); err != nil {
		return nil, goerr.Wrap(err, "failed to apply confirmed fact",
			goerr.V("user", confirmation.UserID),
			goerr.V("type", confirmation.Type))
	}

	x.syncProfile(ctx, confirmation.UserID)

	return confirmation, nil
}
