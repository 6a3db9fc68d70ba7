package kg_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/service/kg"
)

func newTestClient(t *testing.T) *kg.Client {
	t.Helper()

	uri := os.Getenv("TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("TEST_NEO4J_URI is not set")
	}
	user := os.Getenv("TEST_NEO4J_USER")
	if user == "" {
		user = "neo4j"
	}
	password := os.Getenv("TEST_NEO4J_PASSWORD")

	ctx := context.Background()
	client, err := kg.New(ctx, uri, user, password, "neo4j")
	gt.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close(ctx)
	})

	return client
}

func TestUpsertAndRelatedKnowledge(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	userID := model.UserID("kg-test-" + time.Now().Format("20060102150405"))

	fact := &model.Fact{
		ID:         model.NewFactID(),
		UserID:     userID,
		Type:       model.FactTypeDestination,
		Value:      "Portugal",
		Confidence: 0.9,
		UpdatedAt:  time.Now(),
	}
	gt.NoError(t, client.UpsertFact(ctx, userID, fact))

	knowledge, err := client.RelatedKnowledge(ctx, userID, "thinking about Portugal", 10)
	gt.NoError(t, err)
	gt.S(t, knowledge).Contains("destination: Portugal")
}

func TestRelatedKnowledgeBoundedLimit(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	userID := model.UserID("kg-test-limit-" + time.Now().Format("20060102150405"))

	for _, f := range []*model.Fact{
		{ID: model.NewFactID(), UserID: userID, Type: model.FactTypeDestination, Value: "Portugal", UpdatedAt: time.Now()},
		{ID: model.NewFactID(), UserID: userID, Type: model.FactTypeBudget, Value: "2000 EUR", UpdatedAt: time.Now()},
	} {
		gt.NoError(t, client.UpsertFact(ctx, userID, f))
	}

	knowledge, err := client.RelatedKnowledge(ctx, userID, "", 1)
	gt.NoError(t, err)
	gt.A(t, strings.Split(knowledge, "\n")).Length(1)

	// values mentioned in the query rank ahead of the rest
	knowledge, err = client.RelatedKnowledge(ctx, userID, "can I afford Portugal", 1)
	gt.NoError(t, err)
	gt.S(t, knowledge).Contains("destination: Portugal")
}

func TestUpsertReplacesSameType(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	userID := model.UserID("kg-test-replace-" + time.Now().Format("20060102150405"))

	first := &model.Fact{
		ID:        model.NewFactID(),
		UserID:    userID,
		Type:      model.FactTypeDestination,
		Value:     "Portugal",
		UpdatedAt: time.Now(),
	}
	gt.NoError(t, client.UpsertFact(ctx, userID, first))

	second := &model.Fact{
		ID:        model.NewFactID(),
		UserID:    userID,
		Type:      model.FactTypeDestination,
		Value:     "Spain",
		UpdatedAt: time.Now(),
	}
	gt.NoError(t, client.UpsertFact(ctx, userID, second))

	knowledge, err := client.RelatedKnowledge(ctx, userID, "", 10)
	gt.NoError(t, err)
	gt.S(t, knowledge).Contains("destination: Spain")
	gt.S(t, knowledge).NotContains("Portugal")
}
