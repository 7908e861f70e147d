package claims

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/llmgateway"
	"github.com/travelguard/insurance-core/types"
)

func TestAnswer_RejectsOutOfRangeInsightCount(t *testing.T) {
	o := &Orchestrator{}
	status, msg := o.Answer(context.Background(), "q", 0)
	assert.Equal(t, 1, status)
	assert.Contains(t, msg, "sql_num")

	status, msg = o.Answer(context.Background(), "q", 11)
	assert.Equal(t, 1, status)
	assert.Contains(t, msg, "sql_num")
}

type scriptedCompleter struct {
	responses []string
	call      int
}

func (s *scriptedCompleter) Complete(ctx context.Context, model string, messages []types.Message, opts llmgateway.ChatOptions) (string, int, int, error) {
	resp := s.responses[s.call]
	s.call++
	return resp, 10, 10, nil
}

func (s *scriptedCompleter) Embed(ctx context.Context, model string, texts []string, dimensions int) ([][]float32, error) {
	return nil, nil
}

func TestPlan_ParsesTopicsObjectForm(t *testing.T) {
	client := &scriptedCompleter{responses: []string{
		`{"topics":[{"topic":"medical coverage","focus":"limits"},{"topic":"cancellation","focus":"claims"}]}`,
	}}
	gw := llmgateway.New(client, llmgateway.Config{MaxRetries: 0}, zap.NewNop())
	o := New(gw, nil, Config{}, zap.NewNop())

	topics, err := o.plan(context.Background(), "recommend coverage", 2)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "medical coverage", topics[0].Topic)
}

func TestSynthesize_PrefixesBareInsightStrings(t *testing.T) {
	client := &scriptedCompleter{responses: []string{
		`{"insights":["covers up to $50,000 per claim","95% of claims processed within 10 days"]}`,
	}}
	gw := llmgateway.New(client, llmgateway.Config{MaxRetries: 0}, zap.NewNop())
	o := New(gw, nil, Config{}, zap.NewNop())

	status, text := o.synthesize(context.Background(), "q", 2, nil)
	assert.Equal(t, 0, status)
	assert.Contains(t, text, "insight_1:")
	assert.Contains(t, text, "insight_2:")
}
