// Package cipher encrypts record payloads with authenticated encryption. Key
// material comes from a key-management backend and is never persisted here.
package cipher

import (
	"context"
	"fmt"
	"strings"

	"clinquery/internal/config"
	"clinquery/internal/models"
)

type Service interface {
	Encrypt(ctx context.Context, plaintext []byte) (models.EncryptedPayload, error)
	Decrypt(ctx context.Context, payload models.EncryptedPayload) ([]byte, error)
}

// New selects the cipher backend. "local" derives versioned keys from a master
// secret; "transit" delegates encrypt/decrypt to a remote key service so raw
// keys never enter this process.
func New(cfg config.Config) (Service, error) {
	switch strings.ToLower(cfg.KeyBackend) {
	case "", "local":
		kr, err := NewLocalKeyring(cfg)
		if err != nil {
			return nil, err
		}
		return NewAESGCM(kr), nil
	case "transit":
		return NewTransit(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported key backend: %s", cfg.KeyBackend)
	}
}
