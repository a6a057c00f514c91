package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"clinquery/internal/cipher"
	"clinquery/internal/config"
	"clinquery/internal/embed"
	"clinquery/internal/logger"
	"clinquery/internal/metrics"
	"clinquery/internal/models"
	"clinquery/internal/providers"
	"clinquery/internal/retrieval"
	"clinquery/internal/vectorstore"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		EmbedDim:           128,
		EmbedModel:         "mock-embed",
		EmbedProviders:     "mock",
		LLMProviders:       "mock",
		StoreBackend:       "memory",
		KeyBackend:         "local",
		MasterKeyHex:       "7f3a1c5d9e2b4a6c8d0e1f2a3b4c5d6e7f8a9b0c1d2e3f405162738495a6b7c8",
		KeyVersion:         1,
		DefaultTopK:        5,
		MaxContextRunes:    4000,
		EmbedTimeoutSecs:   2,
		StoreTimeoutSecs:   2,
		RequestTimeoutSecs: 10,
		EmbedRetries:       1,
		RetryBackoffMillis: 1,
	}
	store := vectorstore.NewMemoryStore(vectorstore.Meta{Dimension: cfg.EmbedDim, Model: cfg.EmbedModel})
	ciph, err := cipher.New(cfg)
	require.NoError(t, err)
	mgr, err := providers.NewManager(cfg)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	met := metrics.New(registry)
	embedder := embed.NewService(cfg, mgr)
	gen := retrieval.NewProviderGenerator(mgr)
	log := logger.Nop()

	return &Server{
		cfg:          cfg,
		orchestrator: retrieval.NewOrchestrator(cfg, embedder, ciph, store, gen, log, met),
		ingestor:     retrieval.NewIngestor(cfg, embedder, ciph, store, log, met),
		store:        store,
		registry:     registry,
		log:          log,
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRecordsThenQueryRoundTrip(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	rec := models.ClinicalRecord{
		RecordID:   "r1",
		PatientID:  "P101",
		RawText:    "Glucose 84.8 mg/dL measured today.",
		RecordType: models.RecordTypeObservation,
		Timestamp:  time.Now(),
	}
	resp := doJSON(t, h, http.MethodPost, "/records", rec)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = doJSON(t, h, http.MethodPost, "/query", map[string]any{
		"caller":     models.Caller{Role: "attending", Grant: models.AccessGrant{Scope: models.ScopeAll}},
		"patient_id": "P101",
		"question":   "What was the glucose reading?",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var out retrieval.Result
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.NotEmpty(t, out.Answer)
	require.NotEmpty(t, out.Context.Snippets)
	require.Equal(t, retrieval.Disclaimer, out.Disclaimer)
}

func TestQueryForbiddenReturns403(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	resp := doJSON(t, h, http.MethodPost, "/query", map[string]any{
		"caller":     models.Caller{Role: "resident", Grant: models.AccessGrant{Scope: models.ScopePatients, Patients: []string{"P7"}}},
		"patient_id": "P101",
		"question":   "Any allergies?",
	})
	require.Equal(t, http.StatusForbidden, resp.Code)
	require.NotContains(t, resp.Body.String(), "P101", "error body must not echo the patient id")
}

func TestRecordsRejectsUnknownType(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	resp := doJSON(t, h, http.MethodPost, "/records", models.ClinicalRecord{
		RecordID:   "r1",
		PatientID:  "P1",
		RawText:    "text",
		RecordType: "imaging",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestQueryRequiresPostAndFields(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	req := httptest.NewRequest(http.MethodGet, "/query", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	resp := doJSON(t, h, http.MethodPost, "/query", map[string]any{"patient_id": "", "question": ""})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
