// Package graphsearch queries a pre-built knowledge-graph semantic index
// over insurance concept nodes. The graph is populated by an offline
// pipeline and is read-only at runtime.
package graphsearch

import (
	"context"

	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/errs"
)

// shortNodeThreshold is the minimum memory length a node must have to be
// considered content rather than a bare label.
const shortNodeThreshold = 100

// Index is the minimal interface over the backing semantic index; it
// abstracts away which graph store (and its query language) is deployed.
type Index interface {
	// QueryTopK returns up to k nodes ranked by similarity to the query
	// embedding, each with its `memory` text payload.
	QueryTopK(ctx context.Context, queryEmbedding []float32, k int) ([]Node, error)
}

// Node is a single concept-graph node surfaced by the index.
type Node struct {
	ID     string
	Memory string
	Score  float64
}

// Embedder produces a query embedding; NewGatewayEmbedder adapts an
// llmgateway.Gateway to it.
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Client searches the concept graph.
type Client struct {
	index   Index
	embed   Embedder
	logger  *zap.Logger
}

// New builds a graph concept search client.
func New(index Index, embed Embedder, logger *zap.Logger) *Client {
	return &Client{index: index, embed: embed, logger: logger.With(zap.String("component", "graphsearch"))}
}

// SearchConcepts retrieves the top-k concept nodes by query-embedding
// similarity, dropping nodes whose memory text is shorter than the
// short-node threshold (labels without content), and returns their
// memory strings in ranked order.
func (c *Client) SearchConcepts(ctx context.Context, query string, k int) ([]string, error) {
	if query == "" {
		return nil, errs.New(errs.InvalidArgument, "query must not be empty")
	}
	if k < 1 || k > 50 {
		return nil, errs.Newf(errs.InvalidArgument, "top_k must be in [1,50], got %d", k)
	}
	if c.index == nil {
		return nil, errs.New(errs.Unavailable, "concept graph index is not connected")
	}

	embedding, err := c.embed.EmbedQuery(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "embed concept search query")
	}

	nodes, err := c.index.QueryTopK(ctx, embedding, k)
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "query concept graph index")
	}

	memories := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if len(n.Memory) < shortNodeThreshold {
			continue
		}
		memories = append(memories, n.Memory)
	}

	return memories, nil
}
