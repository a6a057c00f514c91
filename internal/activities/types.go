package activities

import "clinquery/internal/models"

type ListDocumentsInput struct {
	DropDir string `json:"drop_dir"`
}

type ListDocumentsOutput struct {
	Paths []string `json:"paths"`
}

type ComputeDocumentIDInput struct {
	Path string `json:"path"`
}

type ComputeDocumentIDOutput struct {
	DocumentID string `json:"document_id"`
}

type ExtractTextInput struct {
	Path string `json:"path"`
}

type ExtractTextOutput struct {
	Text string `json:"text"`
}

type BuildRecordsInput struct {
	DocumentID   string `json:"document_id"`
	PatientID    string `json:"patient_id"`
	RecordType   string `json:"record_type"`
	Text         string `json:"text"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

type BuildRecordsOutput struct {
	Records []models.ClinicalRecord `json:"records"`
}

type ParseRecordsInput struct {
	Path string `json:"path"`
}

type ParseRecordsOutput struct {
	Records []models.ClinicalRecord `json:"records"`
	Skipped int                     `json:"skipped"`
}

type IngestRecordInput struct {
	Record models.ClinicalRecord `json:"record"`
}

type WriteBatchSummaryInput struct {
	BatchID string         `json:"batch_id"`
	Summary map[string]any `json:"summary"`
}

type WriteBatchSummaryOutput struct {
	Path string `json:"path"`
}
