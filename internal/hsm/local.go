package hsm

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// LocalModule implements Module with an in-process AES-GCM master key.
// Suitable for development and tests only: the key is neither hardware-bound
// nor auth-gated.
type LocalModule struct {
	masterKey []byte
}

// NewLocalModule creates a local module from a hex-encoded 32-byte master key.
func NewLocalModule(masterKeyHex string) (*LocalModule, error) {
	if masterKeyHex == "" {
		return nil, fmt.Errorf("master key is required for local HSM module")
	}

	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("master key must be hex-encoded: %w", err)
	}
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}

	return &LocalModule{masterKey: masterKey}, nil
}

// WrapKey encrypts a data key using AES-GCM with the local master key.
func (m *LocalModule) WrapKey(ctx context.Context, dataKey []byte) ([]byte, error) {
	block, err := aes.NewCipher(m.masterKey)
	if err != nil {
		return nil, translateErr(err, "local wrap")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, translateErr(err, "local wrap")
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, translateErr(err, "local wrap nonce")
	}

	return gcm.Seal(nonce, nonce, dataKey, nil), nil
}

// UnwrapKey decrypts a wrapped data key.
func (m *LocalModule) UnwrapKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateErr(err, "local unwrap")
	}

	block, err := aes.NewCipher(m.masterKey)
	if err != nil {
		return nil, translateErr(err, "local unwrap")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, translateErr(err, "local unwrap")
	}

	nonceSize := gcm.NonceSize()
	if len(wrapped) < nonceSize {
		return nil, translateErr(fmt.Errorf("wrapped key too short"), "local unwrap")
	}

	nonce, ciphertext := wrapped[:nonceSize], wrapped[nonceSize:]
	dataKey, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, translateErr(err, "local unwrap")
	}

	return dataKey, nil
}

// Provider returns the backend name.
func (m *LocalModule) Provider() string { return string(ProviderLocal) }

// HardwareBacked reports false; the local key lives in process memory.
func (m *LocalModule) HardwareBacked() bool { return false }

// RequiresUserAuth reports false for the local backend.
func (m *LocalModule) RequiresUserAuth() bool { return false }

var _ Module = (*LocalModule)(nil)
