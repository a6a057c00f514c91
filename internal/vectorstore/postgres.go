package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clinquery/internal/models"
	"clinquery/internal/util"
)

// PostgresStore backs the index with pgvector. Upserts rely on row-level
// ON CONFLICT replacement for the atomicity guarantee.
type PostgresStore struct {
	pool *pgxpool.Pool
	meta Meta
}

func NewPostgresStore(ctx context.Context, dsn string, meta Meta) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %v", util.ErrStoreUnavailable, err)
	}
	s := &PostgresStore{pool: pool, meta: meta}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Meta() Meta { return s.meta }

func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS clinical_index (
  record_id   text PRIMARY KEY,
  patient_id  text NOT NULL,
  record_type text NOT NULL,
  ts          timestamptz NOT NULL,
  embedding   vector(%d) NOT NULL,
  algorithm   text NOT NULL,
  key_version int NOT NULL,
  nonce       bytea,
  ciphertext  bytea NOT NULL
);
CREATE INDEX IF NOT EXISTS clinical_index_patient_idx ON clinical_index (patient_id);
CREATE TABLE IF NOT EXISTS index_meta (
  id        int PRIMARY KEY DEFAULT 1 CHECK (id = 1),
  dimension int NOT NULL,
  model     text NOT NULL
);`, s.meta.Dimension))
	if err != nil {
		return fmt.Errorf("%w: ensure schema: %v", util.ErrStoreUnavailable, err)
	}

	var dim int
	var model string
	err = s.pool.QueryRow(ctx, `SELECT dimension, model FROM index_meta WHERE id = 1`).Scan(&dim, &model)
	if errors.Is(err, pgx.ErrNoRows) {
		_, err = s.pool.Exec(ctx, `INSERT INTO index_meta (id, dimension, model) VALUES (1, $1, $2)`, s.meta.Dimension, s.meta.Model)
		if err != nil {
			return fmt.Errorf("%w: write index meta: %v", util.ErrStoreUnavailable, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read index meta: %v", util.ErrStoreUnavailable, err)
	}
	if dim != s.meta.Dimension || model != s.meta.Model {
		return fmt.Errorf("%w: index built for model %s (%d dims), configured %s (%d dims); re-embed before switching",
			util.ErrDimensionMismatch, model, dim, s.meta.Model, s.meta.Dimension)
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, entry models.IndexEntry) error {
	if entry.RecordID == "" || entry.PatientID == "" {
		return fmt.Errorf("%w: index entry requires record_id and patient_id", util.ErrMalformed)
	}
	if len(entry.Vector) != s.meta.Dimension {
		return fmt.Errorf("%w: entry vector has %d components, index requires %d", util.ErrDimensionMismatch, len(entry.Vector), s.meta.Dimension)
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO clinical_index (record_id, patient_id, record_type, ts, embedding, algorithm, key_version, nonce, ciphertext)
VALUES ($1, $2, $3, $4, $5::vector, $6, $7, $8, $9)
ON CONFLICT (record_id)
DO UPDATE SET
  patient_id  = EXCLUDED.patient_id,
  record_type = EXCLUDED.record_type,
  ts          = EXCLUDED.ts,
  embedding   = EXCLUDED.embedding,
  algorithm   = EXCLUDED.algorithm,
  key_version = EXCLUDED.key_version,
  nonce       = EXCLUDED.nonce,
  ciphertext  = EXCLUDED.ciphertext`,
		entry.RecordID, entry.PatientID, string(entry.RecordType), entry.Timestamp,
		ToLiteral(entry.Vector), entry.Payload.Algorithm, entry.Payload.KeyVersion,
		entry.Payload.Nonce, entry.Payload.Ciphertext,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert record %s: %v", util.ErrStoreUnavailable, entry.RecordID, err)
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, queryVec []float32, k int, filters SearchFilters) ([]models.SearchHit, error) {
	if len(queryVec) != s.meta.Dimension {
		return nil, fmt.Errorf("%w: query vector has %d components, index requires %d", util.ErrDimensionMismatch, len(queryVec), s.meta.Dimension)
	}
	if k <= 0 {
		return nil, nil
	}
	args := []any{ToLiteral(queryVec), k}
	filterSQL := ""
	if filters.PatientID != "" {
		filterSQL = " WHERE patient_id = $3"
		args = append(args, filters.PatientID)
	}

	query := `
SELECT record_id,
       patient_id,
       record_type,
       ts,
       1 - (embedding <=> $1::vector) AS score,
       algorithm,
       key_version,
       nonce,
       ciphertext
FROM clinical_index` + filterSQL + `
ORDER BY embedding <=> $1::vector ASC, ts DESC
LIMIT $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", util.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	hits := make([]models.SearchHit, 0, k)
	for rows.Next() {
		var h models.SearchHit
		var recordType string
		if err := rows.Scan(&h.RecordID, &h.PatientID, &recordType, &h.Timestamp, &h.Score,
			&h.Payload.Algorithm, &h.Payload.KeyVersion, &h.Payload.Nonce, &h.Payload.Ciphertext); err != nil {
			return nil, fmt.Errorf("%w: scan search hit: %v", util.ErrStoreUnavailable, err)
		}
		h.RecordType = models.RecordType(recordType)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate search rows: %v", util.ErrStoreUnavailable, err)
	}
	return hits, nil
}

func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
