package cipher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clinquery/internal/config"
	"clinquery/internal/models"
	"clinquery/internal/util"
)

const algTransit = "transit"

// Transit delegates encrypt/decrypt to a remote key-transit service; this
// process never sees raw key material. Backend unavailability fails closed.
type Transit struct {
	baseURL string
	client  *http.Client
}

func NewTransit(cfg config.Config) *Transit {
	return &Transit{
		baseURL: strings.TrimRight(cfg.TransitBaseURL, "/"),
		client:  &http.Client{Timeout: time.Duration(cfg.KeyTimeoutSecs) * time.Second},
	}
}

func (t *Transit) Encrypt(ctx context.Context, plaintext []byte) (models.EncryptedPayload, error) {
	var out struct {
		Ciphertext string `json:"ciphertext"`
		KeyVersion int    `json:"key_version"`
	}
	err := t.post(ctx, "/v1/transit/encrypt", map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	}, &out)
	if err != nil {
		return models.EncryptedPayload{}, err
	}
	return models.EncryptedPayload{
		Algorithm:  algTransit,
		KeyVersion: out.KeyVersion,
		Ciphertext: []byte(out.Ciphertext),
	}, nil
}

func (t *Transit) Decrypt(ctx context.Context, payload models.EncryptedPayload) ([]byte, error) {
	if payload.Algorithm != algTransit {
		return nil, fmt.Errorf("%w: unexpected algorithm %q", util.ErrDecryptionFailed, payload.Algorithm)
	}
	var out struct {
		Plaintext string `json:"plaintext"`
	}
	err := t.post(ctx, "/v1/transit/decrypt", map[string]any{
		"ciphertext":  string(payload.Ciphertext),
		"key_version": payload.KeyVersion,
	}, &out)
	if err != nil {
		return nil, err
	}
	plain, err := base64.StdEncoding.DecodeString(out.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: transit returned invalid plaintext encoding", util.ErrDecryptionFailed)
	}
	return plain, nil
}

func (t *Transit) post(ctx context.Context, path string, in map[string]any, out any) error {
	payload, _ := json.Marshal(in)
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrKeyUnavailable, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		return fmt.Errorf("%w: transit rejected payload", util.ErrDecryptionFailed)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: transit error %d", util.ErrKeyUnavailable, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode transit response: %v", util.ErrKeyUnavailable, err)
	}
	return nil
}
