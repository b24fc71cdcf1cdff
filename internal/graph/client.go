// Package graph provides the knowledge-graph retrieval backend.
//
// Retrieval is two-staged: a constrained model call extracts the named
// entities from the query, then each entity seeds a bounded neighbourhood
// traversal over Neo4j. Results are textual relationship triples in
// "entity - RELATION -> neighbor" form, accumulated in entity order.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ragline/ragline/internal/log"
)

// neighborhoodQuery fetches up to 50 relationship triples around nodes
// whose id contains the entity, in both directions. The MENTIONS relation
// is provenance linking from index construction and is excluded from
// evidence.
const neighborhoodQuery = `
MATCH (node:__Entity__)
WHERE node.id CONTAINS $entity
WITH node LIMIT 4
CALL {
    WITH node
    MATCH (node)-[r]->(neighbor)
    WHERE type(r) <> 'MENTIONS'
    RETURN node.id + ' - ' + type(r) + ' -> ' + neighbor.id AS output
    UNION ALL
    WITH node
    MATCH (node)<-[r]-(neighbor)
    WHERE type(r) <> 'MENTIONS'
    RETURN neighbor.id + ' - ' + type(r) + ' -> ' + node.id AS output
}
RETURN output LIMIT 50`

// Completer is the slice of the LLM client the graph backend needs for
// entity extraction.
type Completer interface {
	Complete(ctx context.Context, msgs []*ai.Message, maxTokens int) (string, error)
}

// Runner executes a read query and returns the values of the single
// string column each record carries. Consumer-defined so the traversal
// logic is testable without a live database.
type Runner interface {
	Run(ctx context.Context, query string, params map[string]any) ([]string, error)
}

// Client is the graph retrieval backend.
// It is safe for concurrent use.
type Client struct {
	runner Runner
	llm    Completer
	logger log.Logger
}

// New creates a Client from a traversal runner and an entity extractor.
func New(runner Runner, llm Completer, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		runner: runner,
		llm:    llm,
		logger: logger.With("component", "graph"),
	}
}

// Search extracts entities from the query and accumulates the traversal
// output for each one. A failing entity contributes nothing but does not
// abort the others; an empty result set yields an empty string. Only an
// entity-extraction failure surfaces as an error.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	entities, err := c.extractEntities(ctx, query)
	if err != nil {
		return "", err
	}
	c.logger.Debug("extracted entities", "count", len(entities))

	var sb strings.Builder
	for _, entity := range entities {
		outputs, err := c.runner.Run(ctx, neighborhoodQuery, map[string]any{"entity": entity})
		if err != nil {
			c.logger.Warn("graph traversal failed for entity", "entity", entity, "error", err)
			continue
		}
		if len(outputs) == 0 {
			continue
		}
		sb.WriteString(strings.Join(outputs, "\n"))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// Neo4jRunner implements Runner over the official Neo4j driver.
type Neo4jRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jRunner creates a Runner bound to one database.
func NewNeo4jRunner(driver neo4j.DriverWithContext, database string) *Neo4jRunner {
	return &Neo4jRunner{driver: driver, database: database}
}

// Run executes the query and collects the first value of each record as a
// string, skipping records with unexpected shapes.
func (r *Neo4jRunner) Run(ctx context.Context, query string, params map[string]any) ([]string, error) {
	result, err := neo4j.ExecuteQuery(ctx, r.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(r.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, fmt.Errorf("executing graph query: %w", err)
	}

	outputs := make([]string, 0, len(result.Records))
	for _, record := range result.Records {
		if len(record.Values) == 0 {
			continue
		}
		if s, ok := record.Values[0].(string); ok {
			outputs = append(outputs, s)
		}
	}
	return outputs, nil
}

// Close releases the underlying driver.
func (r *Neo4jRunner) Close(ctx context.Context) error {
	if err := r.driver.Close(ctx); err != nil {
		return fmt.Errorf("closing neo4j driver: %w", err)
	}
	return nil
}
