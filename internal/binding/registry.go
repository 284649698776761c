// Package binding maintains the persistent registry of wallet-to-HSK
// bindings. All mutation is serialized through a single mutex; the derived
// key handle lives only in the secure vault, keyed by wallet address, and
// never appears in the serialized binding list.
package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/strongroom-wallet/strongroom/internal/credstore"
	"github.com/strongroom-wallet/strongroom/internal/logger"
	"github.com/strongroom-wallet/strongroom/internal/vault"
	apperrors "github.com/strongroom-wallet/strongroom/pkg/errors"
	"github.com/strongroom-wallet/strongroom/pkg/types"
)

const (
	// registryRecordID is the credential store identifier of the serialized
	// binding list.
	registryRecordID = "hsk.bindings"

	// keyHandlePrefix namespaces vault entries holding derived key handles.
	keyHandlePrefix = "hsk.key."

	// saltPrefix namespaces vault entries holding derivation salts.
	saltPrefix = "hsk.salt."

	minHSKIDLen = 8
	maxHSKIDLen = 256

	keyHandleSize = 32
)

// evmAddressPattern is the canonical EVM address format.
var evmAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Registry is the wallet binding registry.
type Registry struct {
	store credstore.Store
	vault *vault.Vault

	// mu serializes every registry mutation; concurrent binding attempts
	// for the same address are mutually exclusive and the loser fails with
	// AlreadyBound.
	mu chan struct{}
}

// NewRegistry creates a registry over the credential store and vault.
func NewRegistry(store credstore.Store, v *vault.Vault) *Registry {
	mu := make(chan struct{}, 1)
	mu <- struct{}{}
	return &Registry{store: store, vault: v, mu: mu}
}

// lock acquires the registry's single-writer slot, honoring ctx.
func (r *Registry) lock(ctx context.Context) error {
	select {
	case <-r.mu:
		return nil
	case <-ctx.Done():
		return apperrors.ErrTimeout
	}
}

func (r *Registry) unlock() {
	r.mu <- struct{}{}
}

// CompleteBinding validates, persists, and returns a new HSK binding for a
// freshly created wallet. The key handle goes into the vault only; the salt
// is stored sharded; the binding record carries neither.
func (r *Registry) CompleteBinding(ctx context.Context, hskID string, keyHandle []byte, address string, credentialIDHash []byte, strategy types.DerivationStrategy, salt []byte) (*types.HSKBinding, error) {
	return r.bind(ctx, hskID, keyHandle, address, credentialIDHash, strategy, salt)
}

// BindToExistingWallet binds an HSK to a wallet that already holds funds.
// Validation is identical to CompleteBinding; only the caller's intent
// differs.
func (r *Registry) BindToExistingWallet(ctx context.Context, hskID string, keyHandle []byte, address string, credentialIDHash []byte, strategy types.DerivationStrategy, salt []byte) (*types.HSKBinding, error) {
	return r.bind(ctx, hskID, keyHandle, address, credentialIDHash, strategy, salt)
}

func (r *Registry) bind(ctx context.Context, hskID string, keyHandle []byte, address string, credentialIDHash []byte, strategy types.DerivationStrategy, salt []byte) (*types.HSKBinding, error) {
	// Validation happens before any persistence.
	if len(hskID) < minHSKIDLen || len(hskID) > maxHSKIDLen {
		return nil, apperrors.BindingFailed(fmt.Sprintf("hsk id length must be in [%d,%d], got %d", minHSKIDLen, maxHSKIDLen, len(hskID)))
	}
	if len(keyHandle) != keyHandleSize {
		return nil, apperrors.BindingFailed(fmt.Sprintf("key handle must be %d bytes, got %d", keyHandleSize, len(keyHandle)))
	}
	if allZero(keyHandle) {
		return nil, apperrors.BindingFailed("key handle failed entropy check")
	}
	if !evmAddressPattern.MatchString(address) {
		return nil, apperrors.InvalidAddress("address must be 0x followed by 40 hex characters")
	}
	if strategy.RequiresSalt() && len(salt) == 0 {
		return nil, apperrors.BindingFailed(fmt.Sprintf("strategy %s requires a derivation salt", strategy))
	}

	if err := r.lock(ctx); err != nil {
		return nil, err
	}
	defer r.unlock()

	bindings, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	for _, b := range bindings {
		if b.Address == address {
			return nil, apperrors.AlreadyBound(address)
		}
	}

	// Key handle goes into the hardware-backed vault, keyed by address.
	if err := r.vault.Store(ctx, keyHandlePrefix+address, keyHandle); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &types.HSKBinding{
		ID:                 uuid.New(),
		HSKID:              hskID,
		Address:            address,
		CredentialIDHash:   append([]byte(nil), credentialIDHash...),
		DerivationStrategy: strategy,
		CreatedAt:          now,
		LastUsedAt:         now,
	}

	if strategy.RequiresSalt() {
		record.DerivationSaltRef = saltPrefix + record.ID.String()
		if err := r.vault.StoreSharded(ctx, record.DerivationSaltRef, salt); err != nil {
			// Roll back the vault key so a failed binding leaves nothing behind.
			_ = r.vault.Delete(ctx, keyHandlePrefix+address)
			return nil, err
		}
	}

	bindings = append(bindings, record)
	if err := r.persist(ctx, bindings); err != nil {
		_ = r.vault.Delete(ctx, keyHandlePrefix+address)
		if record.DerivationSaltRef != "" {
			_ = r.vault.DeleteSharded(ctx, record.DerivationSaltRef)
		}
		return nil, err
	}

	logger.Info(ctx, "completed wallet binding",
		"strategy", string(strategy),
		"address", logger.Fingerprint(address))

	return record, nil
}

// GetBinding returns the binding for an address, or nil when unbound.
func (r *Registry) GetBinding(ctx context.Context, address string) (*types.HSKBinding, error) {
	if err := r.lock(ctx); err != nil {
		return nil, err
	}
	defer r.unlock()

	bindings, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range bindings {
		if b.Address == address {
			return b, nil
		}
	}
	return nil, nil
}

// GetBindingByHSK returns the bindings created with a given hardware key.
func (r *Registry) GetBindingByHSK(ctx context.Context, hskID string) ([]*types.HSKBinding, error) {
	if err := r.lock(ctx); err != nil {
		return nil, err
	}
	defer r.unlock()

	bindings, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []*types.HSKBinding
	for _, b := range bindings {
		if b.HSKID == hskID {
			out = append(out, b)
		}
	}
	return out, nil
}

// IsWalletBound reports whether the address has an HSK binding.
func (r *Registry) IsWalletBound(ctx context.Context, address string) (bool, error) {
	b, err := r.GetBinding(ctx, address)
	if err != nil {
		return false, err
	}
	return b != nil, nil
}

// UpdateLastUsed stamps the binding's last-used time.
func (r *Registry) UpdateLastUsed(ctx context.Context, address string) error {
	if err := r.lock(ctx); err != nil {
		return err
	}
	defer r.unlock()

	bindings, err := r.load(ctx)
	if err != nil {
		return err
	}
	for _, b := range bindings {
		if b.Address == address {
			b.LastUsedAt = time.Now().UTC()
			return r.persist(ctx, bindings)
		}
	}
	return apperrors.ErrNotFound
}

// GetDerivationSalt returns the derivation salt for a bound address. The
// caller must zero the returned bytes after use.
func (r *Registry) GetDerivationSalt(ctx context.Context, address string) ([]byte, error) {
	b, err := r.GetBinding(ctx, address)
	if err != nil {
		return nil, err
	}
	if b == nil || b.DerivationSaltRef == "" {
		return nil, nil
	}
	return r.vault.RetrieveSharded(ctx, b.DerivationSaltRef)
}

// GetKeyHandle retrieves the vault-held key handle for a bound address.
// Triggers the vault's authentication gesture. The caller must zero the
// returned bytes after use.
func (r *Registry) GetKeyHandle(ctx context.Context, address string) ([]byte, error) {
	bound, err := r.IsWalletBound(ctx, address)
	if err != nil {
		return nil, err
	}
	if !bound {
		return nil, apperrors.ErrKeyNotFound
	}
	return r.vault.Retrieve(ctx, keyHandlePrefix+address)
}

// RemoveBinding deletes a binding: vault key first, then salt, then the
// record. Pieces that are already absent are tolerated; any other storage
// error aborts before the record is dropped.
func (r *Registry) RemoveBinding(ctx context.Context, address string) error {
	if err := r.lock(ctx); err != nil {
		return err
	}
	defer r.unlock()

	bindings, err := r.load(ctx)
	if err != nil {
		return err
	}

	index := -1
	var record *types.HSKBinding
	for i, b := range bindings {
		if b.Address == address {
			index = i
			record = b
			break
		}
	}
	if record == nil {
		return apperrors.ErrNotFound
	}

	if err := r.vault.Delete(ctx, keyHandlePrefix+address); err != nil {
		if coreErr, ok := apperrors.IsCoreError(err); !ok || coreErr.Code != apperrors.CodeNotFound {
			return err
		}
	}

	if record.DerivationSaltRef != "" {
		if err := r.vault.DeleteSharded(ctx, record.DerivationSaltRef); err != nil {
			return err
		}
	}

	bindings = append(bindings[:index], bindings[index+1:]...)
	if err := r.persist(ctx, bindings); err != nil {
		return err
	}

	logger.Info(ctx, "removed wallet binding", "address", logger.Fingerprint(address))
	return nil
}

// load reads and decodes the binding list. Callers must hold the writer slot.
func (r *Registry) load(ctx context.Context) ([]*types.HSKBinding, error) {
	blob, status := r.store.Get(ctx, registryRecordID)
	switch status {
	case credstore.StatusSuccess:
	case credstore.StatusNotFound:
		return nil, nil
	default:
		return nil, apperrors.StoreError(fmt.Sprintf("binding list read status %s", status))
	}

	var bindings []*types.HSKBinding
	if err := json.Unmarshal(blob, &bindings); err != nil {
		return nil, apperrors.StoreError(fmt.Sprintf("binding list decode: %v", err))
	}
	return bindings, nil
}

// persist serializes and writes the binding list. The serialized form never
// contains key handles or raw credential identifiers.
func (r *Registry) persist(ctx context.Context, bindings []*types.HSKBinding) error {
	blob, err := json.Marshal(bindings)
	if err != nil {
		return apperrors.StoreError(fmt.Sprintf("binding list encode: %v", err))
	}
	if status := r.store.Put(ctx, registryRecordID, blob); status != credstore.StatusSuccess {
		return apperrors.StoreError(fmt.Sprintf("binding list write status %s", status))
	}
	return nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
