package util

import "errors"

var (
	// ErrForbidden never reveals whether the patient exists.
	ErrForbidden = errors.New("access to patient denied")

	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	ErrStoreUnavailable     = errors.New("vector store unavailable")
	ErrDecryptionFailed     = errors.New("payload decryption failed")
	ErrMalformed            = errors.New("malformed input")
	ErrKeyUnavailable       = errors.New("key backend unavailable")
	ErrDimensionMismatch    = errors.New("embedding dimension mismatch")

	ErrNoExtractableText = errors.New("no extractable text found in document")
)
