package graphsearch

import (
	"context"
	"fmt"

	"github.com/travelguard/insurance-core/llmgateway"
)

// gatewayEmbedder adapts llmgateway.Gateway's batch Embed to the
// single-query Embedder interface graphsearch depends on.
type gatewayEmbedder struct {
	gateway    *llmgateway.Gateway
	model      string
	dimensions int
}

// NewGatewayEmbedder wraps an llmgateway.Gateway for single-query use.
func NewGatewayEmbedder(gateway *llmgateway.Gateway, model string, dimensions int) Embedder {
	return &gatewayEmbedder{gateway: gateway, model: model, dimensions: dimensions}
}

func (g *gatewayEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	res, err := g.gateway.Embed(ctx, g.model, []string{query}, g.dimensions)
	if err != nil {
		return nil, err
	}
	if res.Status != llmgateway.StatusOK {
		return nil, fmt.Errorf("embed query failed: %s", res.ErrorMessage)
	}
	return res.Vectors[0], nil
}
