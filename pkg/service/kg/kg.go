package kg

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/quest-labs/relo/pkg/model"
)

const defaultKnowledgeLimit = 10

// Service is the interface for the relocation knowledge graph
type Service interface {
	// UpsertFact mirrors a committed fact into the graph
	UpsertFact(ctx context.Context, userID model.UserID, fact *model.Fact) error
	// RelatedKnowledge searches the user's graph neighborhood and
	// returns a prompt-ready summary of at most limit hits, values
	// mentioned in the query ranked first. Empty string when nothing
	// is known.
	RelatedKnowledge(ctx context.Context, userID model.UserID, query string, limit int) (string, error)
	// Close releases the driver
	Close(ctx context.Context) error
}

// Client implements Service on a Neo4j database
type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

// New creates a knowledge graph client and verifies connectivity
func New(ctx context.Context, uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create neo4j driver", goerr.V("uri", uri))
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, goerr.Wrap(err, "failed to connect to neo4j", goerr.V("uri", uri))
	}

	return &Client{driver: driver, database: database}, nil
}

// Close releases the driver
func (c *Client) Close(ctx context.Context) error {
	if err := c.driver.Close(ctx); err != nil {
		return goerr.Wrap(err, "failed to close neo4j driver")
	}
	return nil
}

// UpsertFact mirrors a committed fact into the graph. The user keeps at
// most one HAS_FACT edge per fact type.
func (c *Client) UpsertFact(ctx context.Context, userID model.UserID, fact *model.Fact) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	query := `
MERGE (u:User {id: $user_id})
WITH u
OPTIONAL MATCH (u)-[old:HAS_FACT {type: $type}]->()
DELETE old
WITH u
MERGE (v:Value {name: $value})
CREATE (u)-[:HAS_FACT {type: $type, confidence: $confidence, updated_at: $updated_at}]->(v)
`

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{
			"user_id":    string(userID),
			"type":       string(fact.Type),
			"value":      fact.Value,
			"confidence": fact.Confidence,
			"updated_at": fact.UpdatedAt.Unix(),
		})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to upsert fact into graph",
			goerr.V("user_id", userID), goerr.V("fact_type", fact.Type))
	}

	return nil
}

// RelatedKnowledge searches the user's graph neighborhood for the
// query, including how many other users share each attribute value.
// The result is bounded by limit, query-mentioned values first.
func (c *Client) RelatedKnowledge(ctx context.Context, userID model.UserID, query string, limit int) (string, error) {
	if limit <= 0 {
		limit = defaultKnowledgeLimit
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	cypher := `
MATCH (u:User {id: $user_id})-[r:HAS_FACT]->(v:Value)
OPTIONAL MATCH (v)<-[:HAS_FACT]-(peer:User)
WHERE peer.id <> $user_id
WITH r.type AS type, v.name AS value, count(peer) AS peers,
     CASE WHEN $query <> '' AND toLower($query) CONTAINS toLower(v.name) THEN 1 ELSE 0 END AS hit
RETURN type, value, peers
ORDER BY hit DESC, type
LIMIT $limit
`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{
			"user_id": string(userID),
			"query":   query,
			"limit":   limit,
		})
		if err != nil {
			return nil, err
		}

		var lines []string
		for res.Next(ctx) {
			record := res.Record()
			factType, _ := record.Get("type")
			value, _ := record.Get("value")
			peers, _ := record.Get("peers")

			line := fmt.Sprintf("%v: %v", factType, value)
			if n, ok := peers.(int64); ok && n > 0 {
				line += fmt.Sprintf(" (shared with %d other users)", n)
			}
			lines = append(lines, line)
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		return lines, nil
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to query knowledge graph", goerr.V("user_id", userID))
	}

	lines, ok := result.([]string)
	if !ok || len(lines) == 0 {
		return "", nil
	}

	return strings.Join(lines, "\n"), nil
}
