// Package activities implements the worker-side steps of batch document
// ingestion. Everything that touches the filesystem, the embedding providers,
// or the vector store lives here so workflows stay deterministic.
package activities

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"clinquery/internal/config"
	"clinquery/internal/models"
	"clinquery/internal/retrieval"
	"clinquery/internal/util"
)

const maxRecordLineBytes = 1 << 20

type Activities struct {
	cfg      config.Config
	ingestor *retrieval.Ingestor
}

func New(cfg config.Config, ingestor *retrieval.Ingestor) *Activities {
	return &Activities{cfg: cfg, ingestor: ingestor}
}

// ListDocumentsActivity returns the ingestable files in a drop directory.
// Accepted formats: .pdf and .txt for free-text documents, .jsonl for
// pre-structured record batches.
func (a *Activities) ListDocumentsActivity(ctx context.Context, in ListDocumentsInput) (ListDocumentsOutput, error) {
	_ = ctx
	entries, err := os.ReadDir(in.DropDir)
	if err != nil {
		return ListDocumentsOutput{}, fmt.Errorf("read drop dir: %w", err)
	}
	paths := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".pdf", ".txt", ".jsonl":
			paths = append(paths, filepath.Join(in.DropDir, e.Name()))
		}
	}
	sort.Strings(paths)
	return ListDocumentsOutput{Paths: paths}, nil
}

func (a *Activities) ComputeDocumentIDActivity(ctx context.Context, in ComputeDocumentIDInput) (ComputeDocumentIDOutput, error) {
	_ = ctx
	f, err := os.Open(in.Path)
	if err != nil {
		return ComputeDocumentIDOutput{}, fmt.Errorf("open file for hash: %w", err)
	}
	defer f.Close()
	sum, err := util.SHA256HexFromReader(f)
	if err != nil {
		return ComputeDocumentIDOutput{}, fmt.Errorf("hash file: %w", err)
	}
	return ComputeDocumentIDOutput{DocumentID: sum}, nil
}

func (a *Activities) ExtractTextActivity(ctx context.Context, in ExtractTextInput) (ExtractTextOutput, error) {
	_ = ctx
	var text string
	switch strings.ToLower(filepath.Ext(in.Path)) {
	case ".pdf":
		f, r, err := pdf.Open(in.Path)
		if err != nil {
			return ExtractTextOutput{}, fmt.Errorf("open pdf: %w", err)
		}
		defer f.Close()
		reader, err := r.GetPlainText()
		if err != nil {
			return ExtractTextOutput{}, fmt.Errorf("extract pdf text: %w", err)
		}
		buf := new(strings.Builder)
		if _, err := io.Copy(buf, reader); err != nil {
			return ExtractTextOutput{}, fmt.Errorf("read extracted text: %w", err)
		}
		text = buf.String()
	default:
		b, err := os.ReadFile(in.Path)
		if err != nil {
			return ExtractTextOutput{}, fmt.Errorf("read document: %w", err)
		}
		text = string(b)
	}
	text = util.SanitizeText(strings.TrimSpace(text))
	if text == "" {
		return ExtractTextOutput{}, util.ErrNoExtractableText
	}
	return ExtractTextOutput{Text: text}, nil
}

// BuildRecordsActivity splits one document's text into chunk-sized clinical
// records. Record IDs are derived from the document hash, chunk index, and
// chunk content, so re-dropping an unchanged file replaces rather than
// duplicates.
func (a *Activities) BuildRecordsActivity(ctx context.Context, in BuildRecordsInput) (BuildRecordsOutput, error) {
	_ = ctx
	if strings.TrimSpace(in.PatientID) == "" {
		return BuildRecordsOutput{}, fmt.Errorf("%w: document ingestion requires a patient_id", util.ErrMalformed)
	}
	recordType := models.RecordType(in.RecordType)
	if in.RecordType == "" {
		recordType = models.RecordTypeNote
	}
	if !models.ValidRecordType(recordType) {
		return BuildRecordsOutput{}, fmt.Errorf("%w: unknown record type %q", util.ErrMalformed, in.RecordType)
	}
	chunkSize := in.ChunkSize
	if chunkSize <= 0 {
		chunkSize = a.cfg.ChunkSize
	}
	overlap := in.ChunkOverlap
	if overlap < 0 || overlap >= chunkSize {
		overlap = a.cfg.ChunkOverlap
	}

	now := time.Now().UTC()
	parts := util.ChunkText(in.Text, chunkSize, overlap)
	records := make([]models.ClinicalRecord, 0, len(parts))
	for idx, part := range parts {
		part = util.SanitizeText(part)
		if part == "" {
			continue
		}
		recordID := util.SHA256Hex([]byte(fmt.Sprintf("%s:%d:%s", in.DocumentID, idx, util.SHA256Hex([]byte(part)))))
		records = append(records, models.ClinicalRecord{
			RecordID:   recordID,
			PatientID:  in.PatientID,
			RawText:    part,
			RecordType: recordType,
			Timestamp:  now,
		})
	}
	return BuildRecordsOutput{Records: records}, nil
}

// ParseRecordsActivity reads a .jsonl batch where each line is one clinical
// record. Unparseable lines are counted and skipped so one bad row does not
// sink the batch.
func (a *Activities) ParseRecordsActivity(ctx context.Context, in ParseRecordsInput) (ParseRecordsOutput, error) {
	_ = ctx
	f, err := os.Open(in.Path)
	if err != nil {
		return ParseRecordsOutput{}, fmt.Errorf("open record batch: %w", err)
	}
	defer f.Close()

	out := ParseRecordsOutput{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec models.ClinicalRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			out.Skipped++
			continue
		}
		if rec.RecordID == "" || rec.PatientID == "" || !models.ValidRecordType(rec.RecordType) {
			out.Skipped++
			continue
		}
		out.Records = append(out.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return ParseRecordsOutput{}, fmt.Errorf("scan record batch: %w", err)
	}
	return out, nil
}

func (a *Activities) IngestRecordActivity(ctx context.Context, in IngestRecordInput) error {
	return a.ingestor.Ingest(ctx, in.Record)
}

func (a *Activities) WriteBatchSummaryActivity(ctx context.Context, in WriteBatchSummaryInput) (WriteBatchSummaryOutput, error) {
	_ = ctx
	path := filepath.Join(a.cfg.ArtifactRoot, in.BatchID, "batch_summary.json")
	if err := util.WriteJSONAtomic(path, in.Summary); err != nil {
		return WriteBatchSummaryOutput{}, err
	}
	return WriteBatchSummaryOutput{Path: path}, nil
}
