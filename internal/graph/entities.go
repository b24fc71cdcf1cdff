package graph

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

// entityTokenBudget caps the extraction call; a handful of entity names
// never needs more.
const entityTokenBudget = 50

// Characters stripped from extracted entity names before they are used as
// traversal parameters.
var (
	quoteChars = regexp.MustCompile(`["'\[\]]`)
	punctChars = regexp.MustCompile(`[.,!?;:(){}]`)
)

// extractEntities asks the model for the named entities in the query and
// returns them cleaned, in extraction order. Duplicates are preserved;
// traversal output concatenation tolerates them.
func (c *Client) extractEntities(ctx context.Context, query string) ([]string, error) {
	msgs := []*ai.Message{
		{Role: ai.RoleSystem, Content: []*ai.Part{ai.NewTextPart(entitySystemPrompt)}},
		{Role: ai.RoleUser, Content: []*ai.Part{ai.NewTextPart(fmt.Sprintf(entityPrompt, query))}},
	}

	out, err := c.llm.Complete(ctx, msgs, entityTokenBudget)
	if err != nil {
		return nil, fmt.Errorf("extracting entities: %w", err)
	}

	var entities []string
	for _, raw := range strings.Split(out, ",") {
		if name := cleanEntity(raw); name != "" {
			entities = append(entities, name)
		}
	}
	return entities, nil
}

// cleanEntity strips quoting, list brackets and punctuation that models
// tend to wrap around entity names.
func cleanEntity(s string) string {
	s = quoteChars.ReplaceAllString(s, "")
	s = punctChars.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
