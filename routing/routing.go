// Package routing implements the LLM-guided table classifier that
// dispatches a natural-language query to one or more vector-indexed
// tables, fans out the per-table searches in parallel, and merges and
// re-ranks the results.
package routing

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/travelguard/insurance-core/errs"
	"github.com/travelguard/insurance-core/llmgateway"
	"github.com/travelguard/insurance-core/types"
	"github.com/travelguard/insurance-core/validator"
	"github.com/travelguard/insurance-core/vectorsearch"
)

const systemPrompt = `You are a routing classifier for a travel-insurance knowledge base. ` +
	`Given the user's query, decide which of the following tables are relevant: ` +
	`general_conditions, benefits, benefit_conditions. ` +
	`Respond with strict JSON only: {"tables": ["<one or more of the names above>"]}.`

var validTables = map[string]vectorsearch.Table{
	"general_conditions": vectorsearch.TableGeneralConditions,
	"benefits":           vectorsearch.TableBenefits,
	"benefit_conditions": vectorsearch.TableBenefitConditions,
}

// StatusCode mirrors the spec's documented (status_code, merged_results)
// result pair: 0 success, 1 failure.
type StatusCode int

const (
	StatusSuccess StatusCode = 0
	StatusFailure StatusCode = 1
)

// Engine routes queries to vector-indexed tables and merges results.
type Engine struct {
	gateway    *llmgateway.Gateway
	search     *vectorsearch.Client
	model      string
	maxRetries int
	logger     *zap.Logger
}

// Config bounds the routing engine's behavior.
type Config struct {
	RouterModel string
	MaxRetries  int
}

// New builds a routing Engine.
func New(gateway *llmgateway.Gateway, search *vectorsearch.Client, cfg Config, logger *zap.Logger) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Engine{
		gateway:    gateway,
		search:     search,
		model:      cfg.RouterModel,
		maxRetries: cfg.MaxRetries,
		logger:     logger.With(zap.String("component", "routing")),
	}
}

// Route classifies query, fans out to the selected tables' vector
// search, and returns the globally re-ranked merged results.
func (e *Engine) Route(ctx context.Context, query string, k int) (StatusCode, []vectorsearch.Row, []string, error) {
	if query == "" {
		return StatusFailure, nil, nil, errs.New(errs.InvalidArgument, "query must not be empty")
	}
	if k < 1 || k > 50 {
		return StatusFailure, nil, nil, errs.Newf(errs.InvalidArgument, "top_k must be in [1,50], got %d", k)
	}

	tables, err := e.classify(ctx, query)
	if err != nil {
		return StatusFailure, nil, nil, err
	}
	if len(tables) == 0 {
		return StatusFailure, nil, nil, nil
	}

	results, err := e.fanOutSearch(ctx, tables, query, k)
	if err != nil {
		return StatusFailure, nil, nil, err
	}

	tableNames := make([]string, 0, len(tables))
	for _, t := range tables {
		tableNames = append(tableNames, string(t))
	}

	return StatusSuccess, mergeAndRank(results), tableNames, nil
}

// classify asks the router model for the set of relevant tables,
// retrying up to maxRetries times if the set comes back empty after
// validation (unknown table names are dropped silently).
func (e *Engine) classify(ctx context.Context, query string) ([]vectorsearch.Table, error) {
	messages := []types.Message{
		types.NewSystemMessage(systemPrompt),
		types.NewUserMessage(query),
	}

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		res, err := e.gateway.Chat(ctx, e.model, messages, llmgateway.ChatOptions{JSONMode: true, Temperature: 0})
		if err != nil {
			return nil, errs.Wrap(errs.Runtime, err, "routing classification call")
		}
		if res.Status != llmgateway.StatusOK {
			e.logger.Warn("routing classification call failed", zap.String("status", string(res.Status)))
			continue
		}

		parsed := validator.Parse(res.Content, validator.Options{ExpectedKeys: []string{"tables"}})
		if !parsed.Ok {
			e.logger.Warn("routing classification response failed validation", zap.String("error_kind", string(parsed.ErrorKind)))
			continue
		}

		obj := parsed.Parsed.(map[string]any)
		rawTables, _ := obj["tables"].([]any)

		tables := make([]vectorsearch.Table, 0, len(rawTables))
		for _, rt := range rawTables {
			name, ok := rt.(string)
			if !ok {
				continue
			}
			if t, known := validTables[name]; known {
				tables = append(tables, t)
			}
		}

		if len(tables) > 0 {
			return dedupeTables(tables), nil
		}
	}

	return nil, nil
}

func dedupeTables(tables []vectorsearch.Table) []vectorsearch.Table {
	seen := make(map[vectorsearch.Table]bool, len(tables))
	out := make([]vectorsearch.Table, 0, len(tables))
	for _, t := range tables {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// fanOutSearch runs one search per table in parallel via errgroup,
// preserving per-table insertion order within each table's result slice.
func (e *Engine) fanOutSearch(ctx context.Context, tables []vectorsearch.Table, query string, k int) ([][]vectorsearch.Row, error) {
	results := make([][]vectorsearch.Row, len(tables))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, table := range tables {
		i, table := i, table
		g.Go(func() error {
			var rows []vectorsearch.Row
			var err error

			switch table {
			case vectorsearch.TableGeneralConditions:
				rows, err = e.search.SearchGeneralConditions(gctx, query, k)
			case vectorsearch.TableBenefits:
				rows, err = e.search.SearchBenefits(gctx, query, k)
			case vectorsearch.TableBenefitConditions:
				rows, err = e.search.SearchBenefitConditions(gctx, query, k)
			}
			if err != nil {
				return err
			}

			mu.Lock()
			results[i] = rows
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errs.Wrap(errs.Unavailable, err, "fan-out vector search")
	}

	return results, nil
}

// mergeAndRank concatenates the per-table result sets, then re-sorts
// globally by similarity_score descending. When scores tie, per-table
// insertion order is preserved; tables without scores are appended
// after scored rows, in their original relative order.
func mergeAndRank(perTable [][]vectorsearch.Row) []vectorsearch.Row {
	merged := make([]vectorsearch.Row, 0)
	for _, rows := range perTable {
		merged = append(merged, rows...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].SimilarityScore > merged[j].SimilarityScore
	})

	return merged
}
