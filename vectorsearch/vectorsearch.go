// Package vectorsearch runs cosine-similarity nearest-neighbor queries
// against the relational store's vector-backed tables via server-side
// stored procedures, embedding the query once per call through the LLM
// gateway's cached Embed.
package vectorsearch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/travelguard/insurance-core/errs"
	"github.com/travelguard/insurance-core/internal/cache"
	"github.com/travelguard/insurance-core/llmgateway"
)

const resultCacheTTL = 5 * time.Minute

// Table names the vector-backed tables this client searches.
type Table string

const (
	TableGeneralConditions Table = "general_conditions"
	TableBenefits          Table = "benefits"
	TableBenefitConditions Table = "benefit_conditions"
	TableOriginalText      Table = "original_text"
)

// Row is a single similarity-search hit.
type Row struct {
	Table          Table          `json:"table"`
	SimilarityScore float64       `json:"similarity_score"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Client searches the vector tables.
type Client struct {
	db         *gorm.DB
	gateway    *llmgateway.Gateway
	cache      *cache.Manager
	embedModel string
	dimensions int
	logger     *zap.Logger
}

// Config configures the embedding model/dimensions used to query every
// table — a single embedding dimension D is chosen at deploy
// time and must match the store's column definition.
type Config struct {
	EmbeddingModel      string
	EmbeddingDimensions int
}

// New builds a vector search client.
func New(db *gorm.DB, gateway *llmgateway.Gateway, resultCache *cache.Manager, cfg Config, logger *zap.Logger) *Client {
	return &Client{
		db:         db,
		gateway:    gateway,
		cache:      resultCache,
		embedModel: cfg.EmbeddingModel,
		dimensions: cfg.EmbeddingDimensions,
		logger:     logger.With(zap.String("component", "vectorsearch")),
	}
}

func validateQuery(q string, k int) error {
	if q == "" {
		return errs.New(errs.InvalidArgument, "query must not be empty")
	}
	if k < 1 || k > 50 {
		return errs.Newf(errs.InvalidArgument, "top_k must be in [1,50], got %d", k)
	}
	return nil
}

// SearchGeneralConditions searches the general_conditions table.
func (c *Client) SearchGeneralConditions(ctx context.Context, query string, k int) ([]Row, error) {
	return c.search(ctx, TableGeneralConditions, query, k)
}

// SearchBenefits searches the benefits table.
func (c *Client) SearchBenefits(ctx context.Context, query string, k int) ([]Row, error) {
	return c.search(ctx, TableBenefits, query, k)
}

// SearchBenefitConditions searches the benefit_conditions table.
func (c *Client) SearchBenefitConditions(ctx context.Context, query string, k int) ([]Row, error) {
	return c.search(ctx, TableBenefitConditions, query, k)
}

// SearchOriginalText searches the original_text chunk table.
func (c *Client) SearchOriginalText(ctx context.Context, query string, k int) ([]Row, error) {
	return c.search(ctx, TableOriginalText, query, k)
}

func (c *Client) search(ctx context.Context, table Table, query string, k int) ([]Row, error) {
	if err := validateQuery(query, k); err != nil {
		return nil, err
	}

	cacheKey := resultCacheKey(table, query, k)
	if c.cache != nil {
		var cached []Row
		if err := c.cache.GetJSON(ctx, cacheKey, &cached); err == nil && cached != nil {
			return cached, nil
		}
	}

	embedRes, err := c.gateway.Embed(ctx, c.embedModel, []string{query}, c.dimensions)
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "embed query for vector search")
	}
	if embedRes.Status != llmgateway.StatusOK {
		return nil, errs.Newf(errs.Unavailable, "embedding call failed: %s", embedRes.ErrorMessage)
	}

	procedure := fmt.Sprintf("search_%s_vector", table)

	var rows []dbRow
	tx := c.db.WithContext(ctx).Raw(
		fmt.Sprintf("SELECT * FROM %s(?, ?)", procedure),
		vectorLiteral(embedRes.Vectors[0]), k,
	).Scan(&rows)

	if tx.Error != nil {
		return nil, errs.Wrap(errs.Unavailable, tx.Error, fmt.Sprintf("query %s", procedure))
	}

	results := make([]Row, 0, len(rows))
	for _, r := range rows {
		results = append(results, Row{
			Table:           table,
			SimilarityScore: r.SimilarityScore,
			Content:         r.Content,
			Metadata:        r.Metadata,
		})
	}

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, cacheKey, results, resultCacheTTL); err != nil {
			c.logger.Warn("failed to cache vector search results", zap.Error(err))
		}
	}

	return results, nil
}

func resultCacheKey(table Table, query string, k int) string {
	h := sha256.New()
	h.Write([]byte(table))
	h.Write([]byte{0})
	h.Write([]byte(query))
	return "vectorsearch:" + string(table) + ":" + fmt.Sprintf("%d", k) + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// dbRow is the raw shape returned by the search_*_vector stored
// procedures.
type dbRow struct {
	SimilarityScore float64        `gorm:"column:similarity_score"`
	Content         string         `gorm:"column:content"`
	Metadata        map[string]any `gorm:"column:metadata;serializer:json"`
}

// vectorLiteral renders an embedding as the pgvector literal syntax
// `[v1,v2,...]` expected by the stored procedure's vector parameter.
func vectorLiteral(v []float32) string {
	s := "["
	for i, f := range v {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%g", f)
	}
	return s + "]"
}
