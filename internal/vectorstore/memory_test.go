package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"clinquery/internal/models"
	"clinquery/internal/util"
)

func entry(recordID, patientID string, vec []float32, ts time.Time) models.IndexEntry {
	return models.IndexEntry{
		RecordID:   recordID,
		PatientID:  patientID,
		RecordType: models.RecordTypeObservation,
		Timestamp:  ts,
		Vector:     vec,
		Payload:    models.EncryptedPayload{Algorithm: "aes256-gcm", KeyVersion: 1, Ciphertext: []byte(recordID)},
	}
}

func TestMemoryStorePatientFilterNeverLeaks(t *testing.T) {
	s := NewMemoryStore(Meta{Dimension: 3, Model: "mock-embed"})
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 20; i++ {
		pid := fmt.Sprintf("P%d", i%4)
		if err := s.Upsert(ctx, entry(fmt.Sprintf("r%d", i), pid, []float32{1, float32(i), 0}, now)); err != nil {
			t.Fatal(err)
		}
	}
	hits, err := s.Search(ctx, []float32{1, 0, 0}, 50, SearchFilters{PatientID: "P2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits for P2")
	}
	for _, h := range hits {
		if h.PatientID != "P2" {
			t.Fatalf("cross-patient leakage: got hit for %s", h.PatientID)
		}
	}
}

func TestMemoryStoreRankingAndTieBreak(t *testing.T) {
	s := NewMemoryStore(Meta{Dimension: 2, Model: "mock-embed"})
	ctx := context.Background()
	older := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	// close and far vectors, plus two identical vectors differing by timestamp
	if err := s.Upsert(ctx, entry("far", "P1", []float32{0, 1}, newer)); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, entry("tie-old", "P1", []float32{1, 0}, older)); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, entry("tie-new", "P1", []float32{1, 0}, newer)); err != nil {
		t.Fatal(err)
	}

	hits, err := s.Search(ctx, []float32{1, 0}, 3, SearchFilters{PatientID: "P1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].RecordID != "tie-new" || hits[1].RecordID != "tie-old" {
		t.Fatalf("tie should break toward most recent: %s, %s", hits[0].RecordID, hits[1].RecordID)
	}
	if hits[2].RecordID != "far" {
		t.Fatalf("expected far vector last, got %s", hits[2].RecordID)
	}
	if hits[0].Score <= hits[2].Score {
		t.Fatalf("scores not descending: %f then %f", hits[0].Score, hits[2].Score)
	}
}

func TestMemoryStoreUpsertReplacesEntry(t *testing.T) {
	s := NewMemoryStore(Meta{Dimension: 2, Model: "mock-embed"})
	ctx := context.Background()
	now := time.Now()
	if err := s.Upsert(ctx, entry("r1", "P1", []float32{1, 0}, now)); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, entry("r1", "P1", []float32{0, 1}, now.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}
	hits, err := s.Search(ctx, []float32{0, 1}, 10, SearchFilters{PatientID: "P1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("re-ingestion must leave one live entry, got %d", len(hits))
	}
	if hits[0].Score < 0.999 {
		t.Fatalf("entry should reflect latest vector, score %f", hits[0].Score)
	}
}

func TestMemoryStoreDimensionMismatch(t *testing.T) {
	s := NewMemoryStore(Meta{Dimension: 3, Model: "mock-embed"})
	ctx := context.Background()
	err := s.Upsert(ctx, entry("r1", "P1", []float32{1, 0}, time.Now()))
	if !errors.Is(err, util.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch on upsert, got %v", err)
	}
	_, err = s.Search(ctx, []float32{1, 0}, 5, SearchFilters{})
	if !errors.Is(err, util.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch on search, got %v", err)
	}
}

func TestMemoryStoreConcurrentUpsertAndSearch(t *testing.T) {
	s := NewMemoryStore(Meta{Dimension: 2, Model: "mock-embed"})
	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = s.Upsert(ctx, entry("shared", "P1", []float32{float32(w), float32(i)}, time.Now()))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				hits, err := s.Search(ctx, []float32{1, 1}, 5, SearchFilters{PatientID: "P1"})
				if err != nil {
					t.Error(err)
					return
				}
				if len(hits) > 1 {
					t.Errorf("single record_id produced %d entries", len(hits))
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestToLiteral(t *testing.T) {
	got := ToLiteral([]float32{0.5, -1})
	if got != "[0.500000,-1.000000]" {
		t.Fatalf("unexpected literal: %s", got)
	}
}
