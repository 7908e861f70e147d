package graphsearch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/errs"
)

type fakeIndex struct {
	nodes []Node
	err   error
}

func (f *fakeIndex) QueryTopK(ctx context.Context, emb []float32, k int) ([]Node, error) {
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.nodes) {
		return f.nodes[:k], nil
	}
	return f.nodes, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func TestSearchConcepts_DropsShortNodes(t *testing.T) {
	longMemory := make([]byte, 150)
	for i := range longMemory {
		longMemory[i] = 'a'
	}

	idx := &fakeIndex{nodes: []Node{
		{ID: "1", Memory: "short label"},
		{ID: "2", Memory: string(longMemory)},
	}}
	c := New(idx, fakeEmbedder{}, zap.NewNop())

	results, err := c.SearchConcepts(context.Background(), "travel insurance", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, string(longMemory), results[0])
}

func TestSearchConcepts_EmptyQueryRejected(t *testing.T) {
	c := New(&fakeIndex{}, fakeEmbedder{}, zap.NewNop())
	_, err := c.SearchConcepts(context.Background(), "", 5)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

func TestSearchConcepts_KOutOfRange(t *testing.T) {
	c := New(&fakeIndex{}, fakeEmbedder{}, zap.NewNop())
	_, err := c.SearchConcepts(context.Background(), "q", 51)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

func TestSearchConcepts_NotConnected(t *testing.T) {
	c := New(nil, fakeEmbedder{}, zap.NewNop())
	_, err := c.SearchConcepts(context.Background(), "q", 5)
	assert.Equal(t, errs.Unavailable, errs.KindOf(err))
}
