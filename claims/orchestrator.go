package claims

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/errs"
	"github.com/travelguard/insurance-core/llmgateway"
	"github.com/travelguard/insurance-core/types"
	"github.com/travelguard/insurance-core/validator"
)

// topic is one business-question facet planned in P1.
type topic struct {
	Topic string `json:"topic"`
	Focus string `json:"focus"`
}

// topicResult accumulates per-topic state across P2/P3; a per-topic
// failure at any phase is reported alongside siblings, never fatal to
// the whole pipeline: partial failures are reported, not fatal.
type topicResult struct {
	Topic          string
	Focus          string
	SQL            string
	GenerateError  string
	ExecutionError string
	RowCount       int
	SampleRows     []Row
}

// PhaseTimeouts bounds each of the orchestrator's four phases
// independently.
type PhaseTimeouts struct {
	Plan       time.Duration
	Generate   time.Duration
	Execute    time.Duration
	Synthesize time.Duration
}

// Orchestrator runs the plan/generate/execute/synthesize pipeline. It is
// stateless across calls — no cross-call memoization.
type Orchestrator struct {
	gateway        *llmgateway.Gateway
	sandbox        *Sandbox
	plannerModel   string
	sqlModel       string
	synthModel     string
	timeouts       PhaseTimeouts
	maxParallelSQL int
	schemaPrompt   string
	budgeter       *tokenBudgeter
	logger         *zap.Logger
}

// Config configures the orchestrator's models, timeouts, and worker
// concurrency.
type Config struct {
	PlannerModel   string
	SQLModel       string
	SynthModel     string
	Timeouts       PhaseTimeouts
	MaxParallelSQL int
	SchemaPrompt   string
}

// New builds a claims intelligence Orchestrator.
func New(gateway *llmgateway.Gateway, sandbox *Sandbox, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.MaxParallelSQL <= 0 {
		cfg.MaxParallelSQL = 5
	}
	if cfg.Timeouts.Plan <= 0 {
		cfg.Timeouts.Plan = 60 * time.Second
	}
	if cfg.Timeouts.Generate <= 0 {
		cfg.Timeouts.Generate = 60 * time.Second
	}
	if cfg.Timeouts.Execute <= 0 {
		cfg.Timeouts.Execute = 30 * time.Second
	}
	if cfg.Timeouts.Synthesize <= 0 {
		cfg.Timeouts.Synthesize = 300 * time.Second
	}

	return &Orchestrator{
		gateway:        gateway,
		sandbox:        sandbox,
		plannerModel:   cfg.PlannerModel,
		sqlModel:       cfg.SQLModel,
		synthModel:     cfg.SynthModel,
		timeouts:       cfg.Timeouts,
		maxParallelSQL: cfg.MaxParallelSQL,
		schemaPrompt:   cfg.SchemaPrompt,
		budgeter:       newTokenBudgeter(),
		logger:         logger.With(zap.String("component", "claims_orchestrator")),
	}
}

// Answer runs the full four-phase pipeline for query, producing exactly
// numInsights (N ∈ [1,10]) data-grounded insights, or an error message
// on total failure. Returns (0, insights text) or (1, error message),
// matching the documented (status_code, message) contract.
func (o *Orchestrator) Answer(ctx context.Context, query string, numInsights int) (int, string) {
	if numInsights < 1 || numInsights > 10 {
		return 1, fmt.Sprintf("sql_num must be in [1,10], got %d", numInsights)
	}

	topics, err := o.plan(ctx, query, numInsights)
	if err != nil {
		return 1, err.Error()
	}

	results := o.generateAndExecute(ctx, topics)

	status, text := o.synthesize(ctx, query, numInsights, results)
	return status, text
}

// plan runs P1: one LLM call asking for exactly numInsights topics. The
// topics the model returns are used as-is; their count is not enforced.
func (o *Orchestrator) plan(ctx context.Context, query string, numInsights int) ([]topic, error) {
	planCtx, cancel := context.WithTimeout(ctx, o.timeouts.Plan)
	defer cancel()

	prompt := fmt.Sprintf(
		"You are a claims-analysis manager. Given the business question %q, "+
			"produce exactly %d distinct analysis topics as JSON: "+
			`{"topics":[{"topic":"...","focus":"..."}]}`,
		query, numInsights,
	)

	messages := []types.Message{types.NewUserMessage(prompt)}
	res, err := o.gateway.Chat(planCtx, o.plannerModel, messages, llmgateway.ChatOptions{JSONMode: true, Timeout: o.timeouts.Plan})
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "plan phase call")
	}
	if res.Status != llmgateway.StatusOK {
		return nil, errs.Newf(errs.Unavailable, "plan phase call failed: %s", res.ErrorMessage)
	}

	rawTopics, _, ok := validator.ExtractTopicList(res.Content, "topics")
	if !ok {
		return nil, errs.New(errs.Runtime, "plan phase response failed validation")
	}

	topics := make([]topic, 0, len(rawTopics))
	for _, rt := range rawTopics {
		obj, ok := rt.(map[string]any)
		if !ok {
			continue
		}
		t := topic{}
		if v, ok := obj["topic"].(string); ok {
			t.Topic = v
		}
		if v, ok := obj["focus"].(string); ok {
			t.Focus = v
		}
		topics = append(topics, t)
	}

	if len(topics) == 0 {
		return nil, errs.New(errs.Runtime, "plan phase produced no topics")
	}

	return topics, nil
}

// generateAndExecute runs P2 (generate SQL) and P3 (execute) for every
// topic. Workers run in parallel up to maxParallelSQL; a per-topic
// failure at either phase yields a topicResult carrying the error but
// never cancels siblings.
func (o *Orchestrator) generateAndExecute(ctx context.Context, topics []topic) []topicResult {
	results := make([]topicResult, len(topics))
	sem := make(chan struct{}, o.maxParallelSQL)
	var wg sync.WaitGroup

	for i, t := range topics {
		i, t := i, t
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.generateAndExecuteOne(ctx, t)
		}()
	}

	wg.Wait()
	return results
}

func (o *Orchestrator) generateAndExecuteOne(ctx context.Context, t topic) topicResult {
	result := topicResult{Topic: t.Topic, Focus: t.Focus}

	sql, err := o.generateSQL(ctx, t)
	if err != nil {
		result.GenerateError = err.Error()
		return result
	}
	result.SQL = sql

	rows, total, err := o.executeSQL(ctx, sql)
	if err != nil {
		result.ExecutionError = err.Error()
		return result
	}

	result.SampleRows = rows
	result.RowCount = total
	return result
}

// generateSQL runs P2 for a single topic: a SQL-specialist call
// expecting {"SQL_code": "SELECT ..."}.
func (o *Orchestrator) generateSQL(ctx context.Context, t topic) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.timeouts.Generate)
	defer cancel()

	prompt := fmt.Sprintf(
		"%s\n\nWrite a single read-only SQL SELECT statement for topic %q (focus: %q). "+
			`Respond with strict JSON: {"SQL_code": "SELECT ..."}.`,
		o.schemaPrompt, t.Topic, t.Focus,
	)

	messages := []types.Message{types.NewUserMessage(prompt)}
	res, err := o.gateway.Chat(genCtx, o.sqlModel, messages, llmgateway.ChatOptions{JSONMode: true, Timeout: o.timeouts.Generate})
	if err != nil {
		return "", errs.Wrap(errs.Runtime, err, "generate SQL phase call")
	}
	if res.Status != llmgateway.StatusOK {
		return "", errs.Newf(errs.Unavailable, "generate SQL phase call failed: %s", res.ErrorMessage)
	}

	parsed := validator.Parse(res.Content, validator.Options{ExpectedKeys: []string{"SQL_code"}})
	if !parsed.Ok {
		return "", errs.New(errs.Runtime, "generate SQL phase response failed validation")
	}

	obj := parsed.Parsed.(map[string]any)
	sqlCode, _ := obj["SQL_code"].(string)
	if strings.TrimSpace(sqlCode) == "" {
		return "", errs.New(errs.Runtime, "generate SQL phase returned empty SQL_code")
	}

	return sqlCode, nil
}

// executeSQL runs P3 for a single topic's generated SQL.
func (o *Orchestrator) executeSQL(ctx context.Context, query string) ([]Row, int, error) {
	execCtx, cancel := context.WithTimeout(ctx, o.timeouts.Execute)
	defer cancel()

	return o.sandbox.ExecuteSample(execCtx, query)
}

// synthesize runs P4: one LLM call concatenating every topic's
// {topic, focus, SQL, status, row_count, sample_rows} asking for exactly
// numInsights insights.
func (o *Orchestrator) synthesize(ctx context.Context, query string, numInsights int, results []topicResult) (int, string) {
	synthCtx, cancel := context.WithTimeout(ctx, o.timeouts.Synthesize)
	defer cancel()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Business question: %s\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "Topic %d: %s (focus: %s)\n", i+1, r.Topic, r.Focus)
		switch {
		case r.GenerateError != "":
			fmt.Fprintf(&sb, "  status: sql_generation_failed, error: %s\n", r.GenerateError)
		case r.ExecutionError != "":
			fmt.Fprintf(&sb, "  status: execution_failed, sql: %s, error: %s\n", r.SQL, r.ExecutionError)
		default:
			fmt.Fprintf(&sb, "  status: ok, sql: %s, row_count: %d, sample_rows: %v\n", r.SQL, r.RowCount, r.SampleRows)
		}
	}
	instructions := fmt.Sprintf("\nProduce exactly %d insights, each referencing a numeric datum "+
		`(amount, percentage, or count). Respond with strict JSON: {"insights": ["insight_1: ...", ...]}.`, numInsights)

	body := o.budgeter.truncateToBudget(sb.String(), maxSynthesisPromptTokens-o.budgeter.countTokens(instructions))
	messages := []types.Message{types.NewUserMessage(body + instructions)}
	res, err := o.gateway.Chat(synthCtx, o.synthModel, messages, llmgateway.ChatOptions{JSONMode: true, Timeout: o.timeouts.Synthesize})
	if err != nil {
		return 1, fmt.Sprintf("synthesize phase call error: %v", err)
	}
	if res.Status != llmgateway.StatusOK {
		return 1, fmt.Sprintf("synthesize phase call failed: %s", res.ErrorMessage)
	}

	rawInsights, _, ok := validator.ExtractTopicList(res.Content, "insights")
	if !ok {
		return 1, "synthesize phase response failed validation"
	}

	insights := make([]string, 0, len(rawInsights))
	for i, raw := range rawInsights {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		if !strings.HasPrefix(s, "insight_") {
			s = fmt.Sprintf("insight_%d: %s", i+1, s)
		}
		insights = append(insights, s)
	}

	return 0, strings.Join(insights, ", ")
}
