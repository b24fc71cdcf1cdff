package rag

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/ragline/ragline/internal/log"
)

// ErrUnknownStrategy reports a strategy name the registry does not know.
var ErrUnknownStrategy = errors.New("unknown rag strategy")

// DefaultStrategy is used when a request names no strategy.
const DefaultStrategy = "fusion"

// Strategy retrieves grounding context for a query. Retrieval is best
// effort: implementations degrade to an empty context rather than fail.
type Strategy interface {
	Name() string
	Retrieve(ctx context.Context, query string, topK int) string
}

// fusionStrategy always uses the vector index, skipping classification.
// The name comes from the index's rank-fused retrieval.
type fusionStrategy struct {
	router *Router
}

func (s *fusionStrategy) Name() string { return "fusion" }

func (s *fusionStrategy) Retrieve(ctx context.Context, query string, topK int) string {
	return s.router.Route(ctx, ClassRelevant, query, topK)
}

// graphStrategy queries only the knowledge graph.
type graphStrategy struct {
	graph  GraphSearcher
	logger log.Logger
}

func (s *graphStrategy) Name() string { return "graph" }

func (s *graphStrategy) Retrieve(ctx context.Context, query string, topK int) string {
	result, err := s.graph.Search(ctx, query)
	if err != nil {
		s.logger.Warn("graph retrieval failed, continuing without context",
			"error", err)
		return ""
	}
	return result
}

// adaptiveStrategy classifies the query first and spends retrieval
// effort accordingly.
type adaptiveStrategy struct {
	classifier *Classifier
	router     *Router
}

func (s *adaptiveStrategy) Name() string { return "adaptive" }

func (s *adaptiveStrategy) Retrieve(ctx context.Context, query string, topK int) string {
	class := s.classifier.Classify(ctx, query)
	return s.router.Route(ctx, class, query, topK)
}

// Registry holds the strategies a deployment exposes, keyed by name.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds the standard registry: fusion, graph and adaptive.
func NewRegistry(classifier *Classifier, router *Router, graph GraphSearcher, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	r := &Registry{strategies: make(map[string]Strategy)}
	r.register(&fusionStrategy{router: router})
	r.register(&graphStrategy{graph: graph, logger: logger.With("component", "strategy")})
	r.register(&adaptiveStrategy{classifier: classifier, router: router})
	return r
}

func (r *Registry) register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Lookup resolves a strategy by name, case-insensitively. An empty
// name resolves to DefaultStrategy.
func (r *Registry) Lookup(name string) (Strategy, error) {
	if name == "" {
		name = DefaultStrategy
	}
	name = strings.ToLower(name)
	s, ok := r.strategies[name]
	if !ok {
		return nil, ErrUnknownStrategy
	}
	return s, nil
}

// Names lists the registered strategy names, sorted, for error messages.
func (r *Registry) Names() string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
