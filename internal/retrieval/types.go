package retrieval

import (
	"time"

	"clinquery/internal/models"
)

// State names the orchestrator's request lifecycle for logs and tests.
type State string

const (
	StateReceived         State = "received"
	StateAccessChecked    State = "access_checked"
	StateEmbedded         State = "embedded"
	StateSearched         State = "searched"
	StateDecrypted        State = "decrypted"
	StateContextAssembled State = "context_assembled"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// Disclaimer travels with every answer so the caller-facing layer can render
// it alongside the generated text.
const Disclaimer = "Generated from retrieved record excerpts; not medical advice. Verify against the full chart before acting."

type Result struct {
	Answer     string              `json:"answer"`
	Context    models.QueryContext `json:"context"`
	Disclaimer string              `json:"disclaimer"`
}

// recordPayload is the structured representation sealed into each
// EncryptedPayload. The text field is always de-identified before sealing.
type recordPayload struct {
	RecordID   string            `json:"record_id"`
	PatientID  string            `json:"patient_id"`
	RecordType models.RecordType `json:"record_type"`
	Timestamp  time.Time         `json:"timestamp"`
	Text       string            `json:"text"`
}
