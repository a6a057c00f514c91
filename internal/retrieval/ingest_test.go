package retrieval

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clinquery/internal/logger"
	"clinquery/internal/metrics"
	"clinquery/internal/models"
	"clinquery/internal/util"
	"clinquery/internal/vectorstore"
)

func TestIngestRejectsMalformedRecords(t *testing.T) {
	cfg := testConfig()
	store := vectorstore.NewMemoryStore(vectorstore.Meta{Dimension: cfg.EmbedDim, Model: cfg.EmbedModel})
	p := newTestPipeline(t, cfg, store)
	ctx := context.Background()

	cases := []models.ClinicalRecord{
		{PatientID: "P1", RawText: "text", RecordType: models.RecordTypeNote},
		{RecordID: "r1", RawText: "text", RecordType: models.RecordTypeNote},
		{RecordID: "r1", PatientID: "P1", RawText: "text", RecordType: "imaging"},
	}
	for _, c := range cases {
		err := p.ingestor.Ingest(ctx, c)
		require.ErrorIs(t, err, util.ErrMalformed)
	}
}

func TestIngestSealsDeidentifiedText(t *testing.T) {
	cfg := testConfig()
	store := vectorstore.NewMemoryStore(vectorstore.Meta{Dimension: cfg.EmbedDim, Model: cfg.EmbedModel})
	p := newTestPipeline(t, cfg, store)
	ctx := context.Background()

	raw := "Patient SSN 123-45-6789, seen 2021-03-14 for chest pain."
	require.NoError(t, p.ingestor.Ingest(ctx, rec("r1", "P1", raw, time.Now())))

	vec, err := p.embedder.Embed(ctx, "chest pain")
	require.NoError(t, err)
	hits, err := store.Search(ctx, vec, 1, vectorstore.SearchFilters{PatientID: "P1"})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	plain, err := p.cipher.Decrypt(ctx, hits[0].Payload)
	require.NoError(t, err)
	var payload recordPayload
	require.NoError(t, json.Unmarshal(plain, &payload))

	require.Equal(t, "P1", payload.PatientID)
	require.Contains(t, payload.Text, "chest pain")
	require.Contains(t, payload.Text, "[REDACTED]")
	require.NotContains(t, payload.Text, "123-45-6789")
	require.NotContains(t, payload.Text, "2021-03-14")
	require.NotContains(t, string(hits[0].Payload.Ciphertext), "chest pain")
}

func TestIngestReplacesExistingRecord(t *testing.T) {
	cfg := testConfig()
	store := vectorstore.NewMemoryStore(vectorstore.Meta{Dimension: cfg.EmbedDim, Model: cfg.EmbedModel})
	p := newTestPipeline(t, cfg, store)
	ctx := context.Background()

	require.NoError(t, p.ingestor.Ingest(ctx, rec("r1", "P1", "Initial note.", time.Now())))
	require.NoError(t, p.ingestor.Ingest(ctx, rec("r1", "P1", "Corrected note after review.", time.Now().Add(time.Minute))))

	vec, err := p.embedder.Embed(ctx, "note")
	require.NoError(t, err)
	hits, err := store.Search(ctx, vec, 10, vectorstore.SearchFilters{PatientID: "P1"})
	require.NoError(t, err)
	require.Len(t, hits, 1, "re-ingestion must replace, not duplicate")

	plain, err := p.cipher.Decrypt(ctx, hits[0].Payload)
	require.NoError(t, err)
	var payload recordPayload
	require.NoError(t, json.Unmarshal(plain, &payload))
	require.Contains(t, payload.Text, "Corrected")
}

func TestIngestPropagatesEmbeddingFailure(t *testing.T) {
	cfg := testConfig()
	store := vectorstore.NewMemoryStore(vectorstore.Meta{Dimension: cfg.EmbedDim, Model: cfg.EmbedModel})
	p := newTestPipeline(t, cfg, store)

	ing := NewIngestor(cfg, &failingEmbedder{dim: cfg.EmbedDim}, p.cipher, store, logger.Nop(), metrics.New(nil))
	err := ing.Ingest(context.Background(), rec("r1", "P1", "text", time.Now()))
	require.ErrorIs(t, err, util.ErrEmbeddingUnavailable)

	vec, err := p.embedder.Embed(context.Background(), "text")
	require.NoError(t, err)
	hits, err := store.Search(context.Background(), vec, 5, vectorstore.SearchFilters{PatientID: "P1"})
	require.NoError(t, err)
	require.Empty(t, hits, "nothing may be indexed when embedding fails")
}
