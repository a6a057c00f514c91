package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"clinquery/internal/access"
	"clinquery/internal/cipher"
	"clinquery/internal/config"
	"clinquery/internal/metrics"
	"clinquery/internal/models"
	"clinquery/internal/util"
	"clinquery/internal/vectorstore"
)

const snippetMaxRunes = 480

// Orchestrator drives a query through the pipeline stages in order. Access is
// checked before any embedding or store work so a forbidden caller causes no
// downstream traffic.
type Orchestrator struct {
	cfg      config.Config
	embedder Embedder
	cipher   cipher.Service
	store    vectorstore.Store
	gen      Generator
	log      zerolog.Logger
	met      *metrics.Metrics
}

func NewOrchestrator(cfg config.Config, embedder Embedder, ciph cipher.Service, store vectorstore.Store, gen Generator, log zerolog.Logger, met *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		embedder: embedder,
		cipher:   ciph,
		store:    store,
		gen:      gen,
		log:      log,
		met:      met,
	}
}

// Query answers a clinical question over one patient's records.
func (o *Orchestrator) Query(ctx context.Context, caller models.Caller, patientID, question string, k int) (Result, error) {
	log := o.log.With().Str("patient_id", patientID).Logger()
	log.Debug().Str("state", string(StateReceived)).Msg("query")

	if strings.TrimSpace(patientID) == "" || strings.TrimSpace(question) == "" {
		return o.fail(log, fmt.Errorf("%w: patient_id and question are required", util.ErrMalformed))
	}
	if k <= 0 {
		k = o.cfg.DefaultTopK
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.RequestTimeoutSecs)*time.Second)
	defer cancel()

	if !access.CanAccess(caller.Role, caller.Grant, patientID) {
		o.met.QueriesTotal.WithLabelValues("forbidden").Inc()
		log.Warn().Str("role", caller.Role).Str("state", string(StateFailed)).Msg("access denied")
		return Result{}, fmt.Errorf("%w: role %s may not read patient %s", util.ErrForbidden, caller.Role, patientID)
	}
	log.Debug().Str("state", string(StateAccessChecked)).Msg("query")

	start := time.Now()
	qvec, err := o.embedder.Embed(ctx, question)
	o.met.StageDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, util.ErrEmbeddingUnavailable) && o.cfg.DegradeOnEmbedFail {
			log.Warn().Err(err).Msg("embedding unavailable, serving degraded context")
			return o.complete(ctx, log, question, models.QueryContext{PatientID: patientID, Degraded: true})
		}
		return o.fail(log, err)
	}
	log.Debug().Str("state", string(StateEmbedded)).Msg("query")

	hits, err := o.search(ctx, qvec, k, patientID)
	if err != nil {
		return o.fail(log, err)
	}
	o.met.SearchResults.Observe(float64(len(hits)))
	log.Debug().Str("state", string(StateSearched)).Int("hits", len(hits)).Msg("query")

	snippets, failures := o.decryptHits(ctx, log, patientID, hits)
	log.Debug().Str("state", string(StateDecrypted)).Int("decrypt_failures", failures).Msg("query")

	qc := assembleContext(patientID, snippets, failures, o.cfg.MaxContextRunes)
	log.Debug().Str("state", string(StateContextAssembled)).Int("snippets", len(qc.Snippets)).Msg("query")

	return o.complete(ctx, log, question, qc)
}

// search retries once on store unavailability before giving up.
func (o *Orchestrator) search(ctx context.Context, qvec []float32, k int, patientID string) ([]models.SearchHit, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		searchCtx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.StoreTimeoutSecs)*time.Second)
		start := time.Now()
		hits, err := o.store.Search(searchCtx, qvec, k, vectorstore.SearchFilters{PatientID: patientID})
		o.met.StageDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())
		cancel()
		if err == nil {
			return hits, nil
		}
		lastErr = err
		if !errors.Is(err, util.ErrStoreUnavailable) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// decryptHits opens each payload, skipping records that fail to decrypt and
// dropping anything whose sealed identity does not match the requested
// patient. The store already filters by patient; this is the second check.
func (o *Orchestrator) decryptHits(ctx context.Context, log zerolog.Logger, patientID string, hits []models.SearchHit) ([]models.Snippet, int) {
	snippets := make([]models.Snippet, 0, len(hits))
	failures := 0
	for _, h := range hits {
		if h.PatientID != patientID {
			log.Error().Str("record_id", h.RecordID).Msg("dropping hit for wrong patient")
			continue
		}
		plain, err := o.cipher.Decrypt(ctx, h.Payload)
		if err != nil {
			failures++
			o.met.DecryptFailures.Inc()
			log.Warn().Err(err).Str("record_id", h.RecordID).Msg("skipping undecryptable record")
			continue
		}
		var payload recordPayload
		if err := json.Unmarshal(plain, &payload); err != nil {
			failures++
			o.met.DecryptFailures.Inc()
			log.Warn().Err(err).Str("record_id", h.RecordID).Msg("skipping unreadable payload")
			continue
		}
		if payload.PatientID != patientID {
			log.Error().Str("record_id", h.RecordID).Msg("dropping payload sealed for wrong patient")
			continue
		}
		snippets = append(snippets, models.Snippet{
			RecordID:   h.RecordID,
			RecordType: h.RecordType,
			Timestamp:  h.Timestamp,
			Score:      h.Score,
			Text:       util.DisplaySnippet(payload.Text, snippetMaxRunes),
		})
	}
	return snippets, failures
}

// assembleContext keeps the ranked snippets that fit the rune budget. Hits
// arrive ranked from the store, so truncation drops the least relevant tail.
func assembleContext(patientID string, snippets []models.Snippet, failures, maxRunes int) models.QueryContext {
	qc := models.QueryContext{
		PatientID:       patientID,
		Snippets:        make([]models.Snippet, 0, len(snippets)),
		DecryptFailures: failures,
	}
	used := 0
	for _, s := range snippets {
		n := len([]rune(s.Text))
		if used+n > maxRunes && len(qc.Snippets) > 0 {
			break
		}
		qc.Snippets = append(qc.Snippets, s)
		used += n
	}
	return qc
}

func (o *Orchestrator) complete(ctx context.Context, log zerolog.Logger, question string, qc models.QueryContext) (Result, error) {
	excerpts := make([]string, 0, len(qc.Snippets))
	for _, s := range qc.Snippets {
		excerpts = append(excerpts, fmt.Sprintf("[%s %s %s] %s", s.RecordType, s.RecordID, s.Timestamp.Format("2006-01-02"), s.Text))
	}

	start := time.Now()
	answer, err := o.gen.Generate(ctx, question, excerpts)
	o.met.StageDuration.WithLabelValues("generate").Observe(time.Since(start).Seconds())
	if err != nil {
		return o.fail(log, err)
	}

	outcome := "ok"
	switch {
	case qc.Degraded:
		outcome = "degraded"
	case qc.DecryptFailures > 0:
		outcome = "partial"
	}
	o.met.QueriesTotal.WithLabelValues(outcome).Inc()
	log.Info().Str("state", string(StateCompleted)).Str("outcome", outcome).Msg("query")
	return Result{Answer: answer, Context: qc, Disclaimer: Disclaimer}, nil
}

func (o *Orchestrator) fail(log zerolog.Logger, err error) (Result, error) {
	o.met.QueriesTotal.WithLabelValues("error").Inc()
	log.Warn().Err(err).Str("state", string(StateFailed)).Msg("query")
	return Result{}, err
}
