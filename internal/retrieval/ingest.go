package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"clinquery/internal/cipher"
	"clinquery/internal/config"
	"clinquery/internal/deid"
	"clinquery/internal/metrics"
	"clinquery/internal/models"
	"clinquery/internal/util"
	"clinquery/internal/vectorstore"
)

// Embedder is the slice of the embedding service the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Ingestor runs the write path: sanitize, de-identify, embed, seal, upsert.
// Plaintext never reaches the store.
type Ingestor struct {
	embedder     Embedder
	cipher       cipher.Service
	store        vectorstore.Store
	storeTimeout time.Duration
	log          zerolog.Logger
	met          *metrics.Metrics
}

func NewIngestor(cfg config.Config, embedder Embedder, ciph cipher.Service, store vectorstore.Store, log zerolog.Logger, met *metrics.Metrics) *Ingestor {
	return &Ingestor{
		embedder:     embedder,
		cipher:       ciph,
		store:        store,
		storeTimeout: time.Duration(cfg.StoreTimeoutSecs) * time.Second,
		log:          log,
		met:          met,
	}
}

// Ingest indexes one clinical record. Re-ingesting a record_id replaces the
// prior entry. The sealed payload carries the de-identified text only.
func (p *Ingestor) Ingest(ctx context.Context, rec models.ClinicalRecord) error {
	err := p.ingest(ctx, rec)
	if err != nil {
		p.met.IngestsTotal.WithLabelValues("error").Inc()
		return err
	}
	p.met.IngestsTotal.WithLabelValues("ok").Inc()
	return nil
}

func (p *Ingestor) ingest(ctx context.Context, rec models.ClinicalRecord) error {
	if strings.TrimSpace(rec.RecordID) == "" || strings.TrimSpace(rec.PatientID) == "" {
		return fmt.Errorf("%w: record requires record_id and patient_id", util.ErrMalformed)
	}
	if !models.ValidRecordType(rec.RecordType) {
		return fmt.Errorf("%w: unknown record type %q", util.ErrMalformed, rec.RecordType)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	start := time.Now()
	clean, detections, err := deid.Deidentify(util.SanitizeText(rec.RawText))
	if err != nil {
		return err
	}
	p.met.StageDuration.WithLabelValues("deidentify").Observe(time.Since(start).Seconds())

	start = time.Now()
	vec, err := p.embedder.Embed(ctx, clean)
	if err != nil {
		return err
	}
	p.met.StageDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	plain, err := json.Marshal(recordPayload{
		RecordID:   rec.RecordID,
		PatientID:  rec.PatientID,
		RecordType: rec.RecordType,
		Timestamp:  rec.Timestamp,
		Text:       clean,
	})
	if err != nil {
		return fmt.Errorf("%w: encode record payload: %v", util.ErrMalformed, err)
	}

	start = time.Now()
	sealed, err := p.cipher.Encrypt(ctx, plain)
	if err != nil {
		return err
	}
	p.met.StageDuration.WithLabelValues("encrypt").Observe(time.Since(start).Seconds())

	storeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()
	start = time.Now()
	err = p.store.Upsert(storeCtx, models.IndexEntry{
		RecordID:   rec.RecordID,
		PatientID:  rec.PatientID,
		RecordType: rec.RecordType,
		Timestamp:  rec.Timestamp,
		Vector:     vec,
		Payload:    sealed,
	})
	if err != nil {
		return err
	}
	p.met.StageDuration.WithLabelValues("upsert").Observe(time.Since(start).Seconds())

	p.log.Debug().
		Str("record_id", rec.RecordID).
		Str("patient_id", rec.PatientID).
		Str("record_type", string(rec.RecordType)).
		Int("phi_detections", len(detections)).
		Msg("record ingested")
	return nil
}
