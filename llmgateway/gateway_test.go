package llmgateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/llm/circuitbreaker"
	"github.com/travelguard/insurance-core/types"
)

type fakeCompleter struct {
	callCount   int
	failUntil   int
	embedCalls  int
	failErr     error
	retryable   bool
}

func (f *fakeCompleter) Complete(ctx context.Context, model string, messages []types.Message, opts ChatOptions) (string, int, int, error) {
	f.callCount++
	if f.callCount <= f.failUntil {
		return "", 0, 0, f.failErr
	}
	return "ok response", 10, 5, nil
}

func (f *fakeCompleter) Embed(ctx context.Context, model string, texts []string, dimensions int) ([][]float32, error) {
	f.embedCalls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func testGateway(client Completer) *Gateway {
	return New(client, Config{MaxRetries: 2}, zap.NewNop())
}

func TestChat_EmptyMessages_Errors(t *testing.T) {
	g := testGateway(&fakeCompleter{})
	_, err := g.Chat(context.Background(), "gpt-4o", nil, ChatOptions{})
	require.Error(t, err)
}

func TestChat_SucceedsOnFirstTry(t *testing.T) {
	g := testGateway(&fakeCompleter{})
	res, err := g.Chat(context.Background(), "gpt-4o", []types.Message{types.NewUserMessage("hi")}, ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "ok response", res.Content)
}

func TestChat_RetriesThenSucceeds(t *testing.T) {
	client := &fakeCompleter{failUntil: 2, failErr: errors.New("transient"), retryable: true}
	g := testGateway(client)
	res, err := g.Chat(context.Background(), "gpt-4o", []types.Message{types.NewUserMessage("hi")}, ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 3, client.callCount)
}

func TestEmbed_CachesResults(t *testing.T) {
	client := &fakeCompleter{}
	g := testGateway(client)

	res, err := g.Embed(context.Background(), "text-embedding-3-large", []string{"hello"}, 3072)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 1, client.embedCalls)

	res2, err := g.Embed(context.Background(), "text-embedding-3-large", []string{"hello"}, 3072)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res2.Status)
	assert.Equal(t, 1, client.embedCalls, "second call should hit cache, not the client")
}

func TestEmbed_ZeroDimensions_Errors(t *testing.T) {
	g := testGateway(&fakeCompleter{})
	_, err := g.Embed(context.Background(), "m", []string{"x"}, 0)
	require.Error(t, err)
}

func TestChat_CircuitBreakerOpensAfterSustainedFailures(t *testing.T) {
	// failUntil is large enough that every attempt within every Chat call
	// fails, so the per-model breaker accumulates failures across calls.
	client := &fakeCompleter{failUntil: 1000, failErr: errors.New("provider down")}
	g := testGateway(client)

	// Each Chat call makes up to 3 attempts (1 + MaxRetries). The breaker
	// trips after 5 consecutive failures, which happens partway through
	// the second call.
	for i := 0; i < 2; i++ {
		res, err := g.Chat(context.Background(), "gpt-4o", []types.Message{types.NewUserMessage("hi")}, ChatOptions{})
		require.NoError(t, err)
		assert.Equal(t, StatusRetryable, res.Status)
	}

	callsBeforeTrip := client.callCount
	cb := g.breakerFor("gpt-4o")
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	// Once open, the gateway should fail fast without reaching the client.
	res, err := g.Chat(context.Background(), "gpt-4o", []types.Message{types.NewUserMessage("hi")}, ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusRetryable, res.Status)
	assert.Equal(t, callsBeforeTrip, client.callCount, "no new client call once the breaker is open")
}
