package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/ragline/ragline/internal/log"
)

// Class partitions queries by how much retrieval they deserve.
type Class string

const (
	ClassIrrelevant Class = "irrelevant"
	ClassRelevant   Class = "relevant"
	ClassComplex    Class = "complex"
)

// classifierTokenBudget caps the classifier call. One category name
// never needs more.
const classifierTokenBudget = 8

// Completer is the single LLM call the classifier and the entity
// extractor need. Satisfied by llm.Client.
type Completer interface {
	Complete(ctx context.Context, msgs []*ai.Message, maxTokens int) (string, error)
}

// Classifier assigns a retrieval class to each incoming query.
type Classifier struct {
	llm    Completer
	logger log.Logger
}

func NewClassifier(llm Completer, logger log.Logger) *Classifier {
	return &Classifier{llm: llm, logger: logger}
}

// Classify never fails. A classification error or an unrecognized label
// degrades to ClassRelevant so the query still gets standard retrieval.
//
// The label check is a case-insensitive substring match with a fixed
// priority: irrelevant wins over relevant, relevant wins over complex.
// "Irrelevant" contains "relevant", so the order matters.
func (c *Classifier) Classify(ctx context.Context, query string) Class {
	prompt := fmt.Sprintf(classifierPrompt, query)
	msgs := []*ai.Message{
		ai.NewSystemTextMessage(classifierSystemPrompt),
		ai.NewUserTextMessage(prompt),
	}

	label, err := c.llm.Complete(ctx, msgs, classifierTokenBudget)
	if err != nil {
		c.logger.Warn("query classification failed, treating as relevant",
			"error", err)
		return ClassRelevant
	}

	class := parseClass(label)
	c.logger.Debug("query classified", "class", string(class), "label", label)
	return class
}

func parseClass(label string) Class {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "irrelevant"):
		return ClassIrrelevant
	case strings.Contains(l, "relevant"):
		return ClassRelevant
	case strings.Contains(l, "complex"):
		return ClassComplex
	default:
		return ClassRelevant
	}
}
