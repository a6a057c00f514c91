package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"clinquery/internal/models"
	"clinquery/internal/util"
)

// MemoryStore is the single-process backend. Entries are replaced whole under
// the write lock, so a concurrent Search observes either the old or the new
// entry for a record_id, never a partial write.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.IndexEntry
	meta    Meta
}

func NewMemoryStore(meta Meta) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]models.IndexEntry),
		meta:    meta,
	}
}

func (s *MemoryStore) Meta() Meta { return s.meta }

func (s *MemoryStore) Close() {}

func (s *MemoryStore) Upsert(ctx context.Context, entry models.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", util.ErrStoreUnavailable, err)
	}
	if entry.RecordID == "" || entry.PatientID == "" {
		return fmt.Errorf("%w: index entry requires record_id and patient_id", util.ErrMalformed)
	}
	if len(entry.Vector) != s.meta.Dimension {
		return fmt.Errorf("%w: entry vector has %d components, index requires %d", util.ErrDimensionMismatch, len(entry.Vector), s.meta.Dimension)
	}
	vec := make([]float32, len(entry.Vector))
	copy(vec, entry.Vector)
	entry.Vector = vec

	s.mu.Lock()
	s.entries[entry.RecordID] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, queryVec []float32, k int, filters SearchFilters) ([]models.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrStoreUnavailable, err)
	}
	if len(queryVec) != s.meta.Dimension {
		return nil, fmt.Errorf("%w: query vector has %d components, index requires %d", util.ErrDimensionMismatch, len(queryVec), s.meta.Dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	hits := make([]models.SearchHit, 0, len(s.entries))
	for _, e := range s.entries {
		if filters.PatientID != "" && e.PatientID != filters.PatientID {
			continue
		}
		hits = append(hits, models.SearchHit{
			RecordID:   e.RecordID,
			PatientID:  e.PatientID,
			RecordType: e.RecordType,
			Timestamp:  e.Timestamp,
			Score:      Cosine(queryVec, e.Vector),
			Payload:    e.Payload,
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		// Ties break toward the most recent record.
		return hits[i].Timestamp.After(hits[j].Timestamp)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Cosine returns the cosine similarity of two equal-length vectors; zero when
// either has no magnitude.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
