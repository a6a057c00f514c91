package models

import "time"

type RecordType string

const (
	RecordTypeObservation RecordType = "observation"
	RecordTypeCondition   RecordType = "condition"
	RecordTypeMedication  RecordType = "medication"
	RecordTypeNote        RecordType = "note"
)

func ValidRecordType(t RecordType) bool {
	switch t {
	case RecordTypeObservation, RecordTypeCondition, RecordTypeMedication, RecordTypeNote:
		return true
	}
	return false
}

// ClinicalRecord is the unit of ingestion. Records are immutable once stored;
// re-ingesting the same record_id replaces the previous index entry.
type ClinicalRecord struct {
	RecordID   string     `json:"record_id"`
	PatientID  string     `json:"patient_id"`
	RawText    string     `json:"raw_text"`
	RecordType RecordType `json:"record_type"`
	Timestamp  time.Time  `json:"timestamp"`
}

// EncryptedPayload carries ciphertext plus the algorithm and key version
// needed to decrypt it. It never contains key material.
type EncryptedPayload struct {
	Algorithm  string `json:"algorithm"`
	KeyVersion int    `json:"key_version"`
	Nonce      []byte `json:"nonce,omitempty"`
	Ciphertext []byte `json:"ciphertext"`
}

// IndexEntry is the unit persisted in the vector store. PatientID is never
// empty so every search can be patient-scoped.
type IndexEntry struct {
	RecordID   string
	PatientID  string
	RecordType RecordType
	Timestamp  time.Time
	Vector     []float32
	Payload    EncryptedPayload
}

// SearchHit is one ranked result from a vector store search. The payload is
// still encrypted at this point.
type SearchHit struct {
	RecordID   string
	PatientID  string
	RecordType RecordType
	Timestamp  time.Time
	Score      float64
	Payload    EncryptedPayload
}

const (
	ScopeAll      = "all"
	ScopePatients = "patients"
)

// AccessGrant is read-only at query time; its lifecycle belongs to the
// external user-management service.
type AccessGrant struct {
	Scope    string   `json:"scope"`
	Patients []string `json:"patients,omitempty"`
}

type Caller struct {
	Role  string      `json:"role"`
	Grant AccessGrant `json:"grant"`
}

// Snippet is one decrypted, ranked excerpt with provenance for citation.
type Snippet struct {
	RecordID   string     `json:"record_id"`
	RecordType RecordType `json:"record_type"`
	Timestamp  time.Time  `json:"timestamp"`
	Score      float64    `json:"score"`
	Text       string     `json:"text"`
}

// QueryContext is assembled per request and discarded after it completes.
type QueryContext struct {
	PatientID       string    `json:"patient_id"`
	Snippets        []Snippet `json:"snippets"`
	DecryptFailures int       `json:"decrypt_failures,omitempty"`
	Degraded        bool      `json:"degraded,omitempty"`
}
