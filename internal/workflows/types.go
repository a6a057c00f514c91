package workflows

type BatchIngestInput struct {
	BatchID               string `json:"batch_id"`
	DropDir               string `json:"drop_dir"`
	PatientID             string `json:"patient_id,omitempty"`
	RecordType            string `json:"record_type,omitempty"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
	ChunkSize             int    `json:"chunk_size,omitempty"`
	ChunkOverlap          int    `json:"chunk_overlap,omitempty"`
}

type DocumentIngestInput struct {
	BatchID      string `json:"batch_id"`
	Path         string `json:"path"`
	PatientID    string `json:"patient_id,omitempty"`
	RecordType   string `json:"record_type,omitempty"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap int    `json:"chunk_overlap,omitempty"`
}

type DocumentStatus struct {
	DocumentID      string            `json:"document_id"`
	Path            string            `json:"path"`
	CurrentStep     string            `json:"current_step"`
	Status          string            `json:"status"`
	FailReason      string            `json:"fail_reason,omitempty"`
	RecordsTotal    int               `json:"records_total"`
	RecordsIngested int               `json:"records_ingested"`
	RecordsSkipped  int               `json:"records_skipped"`
	Steps           map[string]string `json:"steps"`
}

type BatchIngestProgress struct {
	BatchID       string            `json:"batch_id"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	PerDocument   map[string]string `json:"per_document_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}
