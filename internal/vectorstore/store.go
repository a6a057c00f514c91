// Package vectorstore persists (record, patient, vector, encrypted payload)
// tuples behind one contract with swappable backends.
package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"clinquery/internal/config"
	"clinquery/internal/models"
)

// Meta pins the index to one embedding configuration. Queries and upserts from
// a differently-configured deployment fail fast instead of producing
// meaningless similarity scores.
type Meta struct {
	Dimension int
	Model     string
}

type SearchFilters struct {
	// PatientID, when set, restricts the candidate set before ranking. A hit
	// for any other patient is a contract violation.
	PatientID string
}

type Store interface {
	Upsert(ctx context.Context, entry models.IndexEntry) error
	Search(ctx context.Context, queryVec []float32, k int, filters SearchFilters) ([]models.SearchHit, error)
	Meta() Meta
	Close()
}

// New selects the vector store backend at startup.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	meta := Meta{Dimension: cfg.EmbedDim, Model: cfg.EmbedModel}
	switch strings.ToLower(cfg.StoreBackend) {
	case "", "memory":
		return NewMemoryStore(meta), nil
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresURL, meta)
	default:
		return nil, fmt.Errorf("unsupported vector store backend: %s", cfg.StoreBackend)
	}
}
