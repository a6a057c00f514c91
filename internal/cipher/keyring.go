package cipher

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"clinquery/internal/config"
	"clinquery/internal/util"
)

type Key struct {
	Version  int
	Material []byte
}

// Keyring hands out versioned keys. Implementations must keep at least the
// current and the immediately prior version resolvable so rotation never needs
// a flag-day re-encryption.
type Keyring interface {
	Current(ctx context.Context) (Key, error)
	ByVersion(ctx context.Context, version int) (Key, error)
}

// LocalKeyring derives AES-256 keys per version from one master secret via
// HKDF, so rotating is bumping CLINQUERY_KEY_VERSION.
type LocalKeyring struct {
	master  []byte
	current int
}

func NewLocalKeyring(cfg config.Config) (*LocalKeyring, error) {
	if cfg.MasterKeyHex == "" {
		return nil, fmt.Errorf("%w: CLINQUERY_MASTER_KEY is not set", util.ErrKeyUnavailable)
	}
	master, err := hex.DecodeString(cfg.MasterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: master key is not valid hex", util.ErrKeyUnavailable)
	}
	if len(master) < 16 {
		return nil, fmt.Errorf("%w: master key too short", util.ErrKeyUnavailable)
	}
	current := cfg.KeyVersion
	if current < 1 {
		current = 1
	}
	return &LocalKeyring{master: master, current: current}, nil
}

func (k *LocalKeyring) Current(ctx context.Context) (Key, error) {
	return k.ByVersion(ctx, k.current)
}

func (k *LocalKeyring) ByVersion(_ context.Context, version int) (Key, error) {
	if version < 1 || version > k.current {
		return Key{}, fmt.Errorf("%w: unknown key version %d", util.ErrKeyUnavailable, version)
	}
	r := hkdf.New(sha256.New, k.master, nil, []byte(fmt.Sprintf("clinquery-payload-key-v%d", version)))
	material := make([]byte, 32)
	if _, err := io.ReadFull(r, material); err != nil {
		return Key{}, fmt.Errorf("%w: derive key v%d: %v", util.ErrKeyUnavailable, version, err)
	}
	return Key{Version: version, Material: material}, nil
}

// NewRandomMasterKeyHex is a provisioning helper for local deployments.
func NewRandomMasterKeyHex() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
