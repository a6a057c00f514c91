// Package api exposes the HTTP surface: single-record ingestion, patient
// queries, and batch ingestion control. Caller identity arrives pre-verified
// from the gateway; this layer only maps it onto the access check.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"

	"clinquery/internal/cipher"
	"clinquery/internal/config"
	"clinquery/internal/embed"
	"clinquery/internal/metrics"
	"clinquery/internal/models"
	"clinquery/internal/providers"
	"clinquery/internal/retrieval"
	"clinquery/internal/util"
	"clinquery/internal/vectorstore"
	"clinquery/internal/workflows"
)

type Server struct {
	cfg          config.Config
	orchestrator *retrieval.Orchestrator
	ingestor     *retrieval.Ingestor
	store        vectorstore.Store
	temporal     tclient.Client
	registry     *prometheus.Registry
	log          zerolog.Logger
}

func NewServer(cfg config.Config, log zerolog.Logger) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := vectorstore.New(ctx, cfg)
	if err != nil {
		panic(err)
	}
	ciph, err := cipher.New(cfg)
	if err != nil {
		panic(err)
	}
	mgr, err := providers.NewManager(cfg)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}

	registry := prometheus.NewRegistry()
	met := metrics.New(registry)
	embedder := embed.NewService(cfg, mgr)
	gen := retrieval.NewProviderGenerator(mgr)

	return &Server{
		cfg:          cfg,
		orchestrator: retrieval.NewOrchestrator(cfg, embedder, ciph, store, gen, log, met),
		ingestor:     retrieval.NewIngestor(cfg, embedder, ciph, store, log, met),
		store:        store,
		temporal:     tc,
		registry:     registry,
		log:          log,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/records", s.handleRecords)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/batches", s.handleBatches)
	mux.HandleFunc("/batches/", s.handleBatchScoped)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var rec models.ClinicalRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if err := s.ingestor.Ingest(r.Context(), rec); err != nil {
		writeErr(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record_id": rec.RecordID, "status": "indexed"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Caller    models.Caller `json:"caller"`
		PatientID string        `json:"patient_id"`
		Question  string        `json:"question"`
		TopK      int           `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.Question = strings.TrimSpace(req.Question)
	if req.PatientID == "" || req.Question == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("%w: patient_id and question are required", util.ErrMalformed))
		return
	}

	res, err := s.orchestrator.Query(r.Context(), req.Caller, req.PatientID, req.Question, req.TopK)
	if err != nil {
		writeErr(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		DropDir    string `json:"drop_dir"`
		PatientID  string `json:"patient_id"`
		RecordType string `json:"record_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.DropDir) == "" {
		req.DropDir = s.cfg.DropRoot
	}

	batchID := uuid.NewString()
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       "batch-" + batchID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.BatchIngestWorkflow, workflows.BatchIngestInput{
		BatchID:               batchID,
		DropDir:               req.DropDir,
		PatientID:             req.PatientID,
		RecordType:            req.RecordType,
		MaxConcurrentChildren: s.cfg.IngestMaxChildren,
		ChunkSize:             s.cfg.ChunkSize,
		ChunkOverlap:          s.cfg.ChunkOverlap,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"batch_id": batchID, "workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleBatchScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/batches/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "progress" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var prog workflows.BatchIngestProgress
	resp, err := s.temporal.QueryWorkflow(r.Context(), "batch-"+parts[0], "", workflows.QueryGetBatchProgress)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	if err := resp.Get(&prog); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

// statusForError maps pipeline sentinels onto HTTP statuses. Anything
// unrecognized is treated as an internal fault.
func statusForError(err error) int {
	switch {
	case errors.Is(err, util.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, util.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, util.ErrEmbeddingUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, util.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, util.ErrDimensionMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

// toAPIError keeps responses user-safe: no raw error text, and a 403 never
// reveals whether the patient exists.
func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "CQ-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500 && status != http.StatusBadGateway && status != http.StatusServiceUnavailable:
		return apiError{
			Code:    "CQ-API-5000",
			Message: "Internal server error. Please retry or check service logs.",
		}
	case status == http.StatusForbidden:
		code = "CQ-API-4003"
		msg = "Access to the requested patient is denied."
	case status == http.StatusBadRequest:
		code = "CQ-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "CQ-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "CQ-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "CQ-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusBadGateway:
		code = "CQ-API-5020"
		msg = "Embedding provider unavailable. Retry shortly."
	case status == http.StatusServiceUnavailable:
		code = "CQ-API-5030"
		msg = "Vector store unavailable. Retry shortly."
	}

	if status == http.StatusBadRequest && err != nil {
		switch {
		case strings.Contains(raw, "patient_id and question are required"):
			msg = "Both patient and question are required."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		case strings.Contains(raw, "record_id and patient_id"):
			msg = "Records require both record_id and patient_id."
		case strings.Contains(raw, "unknown record type"):
			msg = "Unknown record type."
		}
	}

	return apiError{Code: code, Message: msg}
}
