package cipher

import (
	"context"
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"clinquery/internal/models"
	"clinquery/internal/util"
)

const algAESGCM = "aes256-gcm"

// AESGCM seals payloads with AES-256-GCM. Tampered ciphertext fails the GCM
// tag check and surfaces as ErrDecryptionFailed, never as altered plaintext.
type AESGCM struct {
	keyring Keyring
}

func NewAESGCM(kr Keyring) *AESGCM {
	return &AESGCM{keyring: kr}
}

func (a *AESGCM) Encrypt(ctx context.Context, plaintext []byte) (models.EncryptedPayload, error) {
	key, err := a.keyring.Current(ctx)
	if err != nil {
		return models.EncryptedPayload{}, err
	}
	aead, err := newAEAD(key.Material)
	if err != nil {
		return models.EncryptedPayload{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return models.EncryptedPayload{}, fmt.Errorf("generate nonce: %w", err)
	}
	return models.EncryptedPayload{
		Algorithm:  algAESGCM,
		KeyVersion: key.Version,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

func (a *AESGCM) Decrypt(ctx context.Context, payload models.EncryptedPayload) ([]byte, error) {
	if payload.Algorithm != algAESGCM {
		return nil, fmt.Errorf("%w: unexpected algorithm %q", util.ErrDecryptionFailed, payload.Algorithm)
	}
	key, err := a.keyring.ByVersion(ctx, payload.KeyVersion)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(key.Material)
	if err != nil {
		return nil, err
	}
	if len(payload.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", util.ErrDecryptionFailed, len(payload.Nonce))
	}
	plaintext, err := aead.Open(nil, payload.Nonce, payload.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: key v%d", util.ErrDecryptionFailed, payload.KeyVersion)
	}
	return plaintext, nil
}

func newAEAD(material []byte) (gocipher.AEAD, error) {
	block, err := aes.NewCipher(material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrKeyUnavailable, err)
	}
	aead, err := gocipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrKeyUnavailable, err)
	}
	return aead, nil
}
