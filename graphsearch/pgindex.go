package graphsearch

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/travelguard/insurance-core/errs"
)

// pgIndex implements Index over the relational store's concept-graph
// vector table, via the same stored-procedure convention vectorsearch
// uses for its own tables.
type pgIndex struct {
	db *gorm.DB
}

// NewPostgresIndex builds an Index backed by the `search_concept_graph_vector`
// stored procedure.
func NewPostgresIndex(db *gorm.DB) Index {
	return &pgIndex{db: db}
}

type conceptRow struct {
	ID     string  `gorm:"column:id"`
	Memory string  `gorm:"column:memory"`
	Score  float64 `gorm:"column:score"`
}

func (p *pgIndex) QueryTopK(ctx context.Context, queryEmbedding []float32, k int) ([]Node, error) {
	var rows []conceptRow
	tx := p.db.WithContext(ctx).Raw(
		"SELECT * FROM search_concept_graph_vector(?, ?)",
		vectorLiteral(queryEmbedding), k,
	).Scan(&rows)
	if tx.Error != nil {
		return nil, errs.Wrap(errs.Unavailable, tx.Error, "query concept graph vector index")
	}

	nodes := make([]Node, 0, len(rows))
	for _, r := range rows {
		nodes = append(nodes, Node{ID: r.ID, Memory: r.Memory, Score: r.Score})
	}
	return nodes, nil
}

// vectorLiteral renders an embedding as the pgvector literal syntax
// expected by the stored procedure's vector parameter.
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
