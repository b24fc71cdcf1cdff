package rag

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ragline/ragline/internal/log"
)

// Searcher retrieves a flattened context string for a query from the
// vector index. Satisfied by index.Store.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) (string, error)
}

// GraphSearcher retrieves context from the knowledge graph. Satisfied
// by graph.Client.
type GraphSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Router maps a query class to the retrieval backends it deserves:
// irrelevant queries get nothing, relevant queries get the vector
// index, complex queries get vector and graph fused.
type Router struct {
	vector Searcher
	graph  GraphSearcher
	logger log.Logger
}

func NewRouter(vector Searcher, graph GraphSearcher, logger log.Logger) *Router {
	return &Router{vector: vector, graph: graph, logger: logger}
}

// Route returns the retrieved context for the query. Retrieval failures
// never fail the request: a broken backend contributes an empty string
// and generation proceeds with whatever context survives.
func (r *Router) Route(ctx context.Context, class Class, query string, topK int) string {
	switch class {
	case ClassIrrelevant:
		return ""
	case ClassComplex:
		return r.fused(ctx, query, topK)
	default:
		return r.vectorOnly(ctx, query, topK)
	}
}

func (r *Router) vectorOnly(ctx context.Context, query string, topK int) string {
	result, err := r.vector.Search(ctx, query, topK)
	if err != nil {
		r.logger.Warn("vector retrieval failed, continuing without context",
			"error", err)
		return ""
	}
	return result
}

// fused runs both backends concurrently and joins their results with a
// single newline, vector first. Either side may come back empty, from
// a miss or from a tolerated failure; the separator is kept regardless.
func (r *Router) fused(ctx context.Context, query string, topK int) string {
	var vectorResult, graphResult string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := r.vector.Search(gctx, query, topK)
		if err != nil {
			r.logger.Warn("vector retrieval failed during fusion", "error", err)
			return nil
		}
		vectorResult = result
		return nil
	})
	g.Go(func() error {
		result, err := r.graph.Search(gctx, query)
		if err != nil {
			r.logger.Warn("graph retrieval failed during fusion", "error", err)
			return nil
		}
		graphResult = result
		return nil
	})
	_ = g.Wait()

	return vectorResult + "\n" + graphResult
}
