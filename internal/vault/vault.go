// Package vault implements the secure secret vault: envelope encryption of
// arbitrary secrets under a non-exportable HSM key, with ciphertext persisted
// in the platform credential store. Plaintext exists only transiently in
// process memory and is zeroed after use.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/strongroom-wallet/strongroom/internal/credstore"
	"github.com/strongroom-wallet/strongroom/internal/hsm"
	"github.com/strongroom-wallet/strongroom/internal/logger"
	"github.com/strongroom-wallet/strongroom/internal/metrics"
	apperrors "github.com/strongroom-wallet/strongroom/pkg/errors"
)

const dataKeySize = 32

// envelope is the persisted form of a secret: a per-record data key wrapped
// by the HSM, plus the AES-GCM sealed payload. The plaintext is never
// derivable from this record without the HSM's non-exportable key.
type envelope struct {
	WrappedKey []byte `json:"wrapped_key"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Vault envelope-encrypts secrets and persists them in the credential store.
type Vault struct {
	module  hsm.Module
	store   credstore.Store
	limiter *rate.Limiter
}

// New creates a vault over the given HSM module and credential store.
// Retrieve attempts are rate-limited so a misbehaving caller cannot hammer
// the platform authentication prompt.
func New(module hsm.Module, store credstore.Store) *Vault {
	return &Vault{
		module:  module,
		store:   store,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// IsProtected reports whether secrets are protected by hardware-backed keys.
func (v *Vault) IsProtected() bool {
	return v.module.HardwareBacked()
}

// Store envelope-encrypts plaintext and persists it under secretID. Storing
// to an existing identifier updates the record in place.
func (v *Vault) Store(ctx context.Context, secretID string, plaintext []byte) error {
	err := v.storeSecret(ctx, secretID, plaintext)
	metrics.VaultOperations.WithLabelValues("store", metrics.Outcome(err)).Inc()
	return err
}

func (v *Vault) storeSecret(ctx context.Context, secretID string, plaintext []byte) error {
	if secretID == "" {
		return apperrors.StoreError("empty secret identifier")
	}

	dataKey := make([]byte, dataKeySize)
	if _, err := io.ReadFull(rand.Reader, dataKey); err != nil {
		return apperrors.StoreError(fmt.Sprintf("data key generation: %v", err))
	}
	defer zero(dataKey)

	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return apperrors.StoreError(fmt.Sprintf("cipher init: %v", err))
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return apperrors.StoreError(fmt.Sprintf("gcm init: %v", err))
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return apperrors.StoreError(fmt.Sprintf("nonce generation: %v", err))
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, []byte(secretID))

	wrapped, err := v.module.WrapKey(ctx, dataKey)
	if err != nil {
		return err
	}

	blob, err := json.Marshal(&envelope{
		WrappedKey: wrapped,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return apperrors.StoreError(fmt.Sprintf("envelope encoding: %v", err))
	}

	switch status := v.store.Put(ctx, secretID, blob); status {
	case credstore.StatusSuccess:
		return nil
	case credstore.StatusAuthFailed:
		return apperrors.ErrAuthFailed
	default:
		return apperrors.StoreError(fmt.Sprintf("credential store status %s", status))
	}
}

// Retrieve decrypts and returns the secret stored under secretID. When the
// HSM key policy demands it this triggers a platform authentication gesture;
// callers must treat this as a blocking, cancelable step and bound ctx.
// The caller owns the returned plaintext and must zero it after use.
func (v *Vault) Retrieve(ctx context.Context, secretID string) ([]byte, error) {
	plaintext, err := v.retrieve(ctx, secretID)
	metrics.VaultOperations.WithLabelValues("retrieve", metrics.Outcome(err)).Inc()
	return plaintext, err
}

func (v *Vault) retrieve(ctx context.Context, secretID string) ([]byte, error) {
	if secretID == "" {
		return nil, apperrors.StoreError("empty secret identifier")
	}

	if err := v.limiter.Wait(ctx); err != nil {
		return nil, apperrors.ErrTimeout
	}

	blob, status := v.store.Get(ctx, secretID)
	switch status {
	case credstore.StatusSuccess:
	case credstore.StatusNotFound:
		return nil, apperrors.ErrNotFound
	case credstore.StatusAuthFailed:
		return nil, apperrors.ErrAuthFailed
	default:
		return nil, apperrors.StoreError(fmt.Sprintf("credential store status %s", status))
	}

	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, apperrors.StoreError(fmt.Sprintf("envelope decoding: %v", err))
	}

	start := time.Now()
	dataKey, err := v.module.UnwrapKey(ctx, env.WrappedKey)
	if v.module.RequiresUserAuth() {
		metrics.HardwarePromptSeconds.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	defer zero(dataKey)

	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return nil, apperrors.StoreError(fmt.Sprintf("cipher init: %v", err))
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.StoreError(fmt.Sprintf("gcm init: %v", err))
	}

	plaintext, err := gcm.Open(nil, env.Nonce, env.Ciphertext, []byte(secretID))
	if err != nil {
		logger.Warn(ctx, "vault record failed authentication",
			"secret", logger.Fingerprint(secretID))
		return nil, apperrors.ErrAuthFailed
	}

	return plaintext, nil
}

// Delete removes the secret stored under secretID.
func (v *Vault) Delete(ctx context.Context, secretID string) error {
	var err error
	switch status := v.store.Delete(ctx, secretID); status {
	case credstore.StatusSuccess:
	case credstore.StatusNotFound:
		err = apperrors.ErrNotFound
	default:
		err = apperrors.StoreError(fmt.Sprintf("credential store status %s", status))
	}
	metrics.VaultOperations.WithLabelValues("delete", metrics.Outcome(err)).Inc()
	return err
}

// DeleteAll wipes every vault record. Used on wallet reset.
func (v *Vault) DeleteAll(ctx context.Context) error {
	var err error
	if status := v.store.DeleteAll(ctx); status != credstore.StatusSuccess {
		err = apperrors.StoreError(fmt.Sprintf("credential store status %s", status))
	}
	metrics.VaultOperations.WithLabelValues("delete_all", metrics.Outcome(err)).Inc()
	return err
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
