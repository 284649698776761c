package integration

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongroom-wallet/strongroom/internal/binding"
	"github.com/strongroom-wallet/strongroom/internal/credstore"
	"github.com/strongroom-wallet/strongroom/internal/hdkeys"
	"github.com/strongroom-wallet/strongroom/internal/hsk"
	"github.com/strongroom-wallet/strongroom/internal/hsm"
	"github.com/strongroom-wallet/strongroom/internal/vault"
	apperrors "github.com/strongroom-wallet/strongroom/pkg/errors"
	"github.com/strongroom-wallet/strongroom/pkg/types"
	"github.com/strongroom-wallet/strongroom/tests/mocks"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newCore(t *testing.T) (*vault.Vault, *binding.Registry) {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	module, err := hsm.NewLocalModule(hex.EncodeToString(key))
	require.NoError(t, err)

	store := credstore.NewMemoryStore()
	v := vault.New(module, store)
	return v, binding.NewRegistry(store, v)
}

// TestHSKBindingFlow walks the full ceremony: listen for a security key,
// derive a binding key from proof of possession, bind it to a derived wallet
// address, re-derive later, verify the key is still present, and remove.
func TestHSKBindingFlow(t *testing.T) {
	ctx := context.Background()
	_, registry := newCore(t)

	transport := mocks.NewAuthenticatorTransport("integration-credential-001")
	engine := hsk.NewEngine(transport, false, 5*time.Second)

	// Derive the wallet address that will own the binding.
	material, err := hdkeys.Derive(testPhrase, types.ChainEthereum, 0)
	require.NoError(t, err)
	defer material.Zero()

	// Ceremony: tap the key, derive the binding key.
	events, err := engine.ListenForHSK(ctx)
	require.NoError(t, err)
	event := <-events
	require.NoError(t, event.Err)

	result, err := engine.DeriveKey(ctx, event.Proof)
	require.NoError(t, err)
	require.Equal(t, types.StrategySignatureBased, result.Strategy)

	// Persist the binding.
	record, err := registry.CompleteBinding(ctx, "hsk-device-0001", result.KeyHandle,
		material.Address, result.CredentialIDHash, result.Strategy, result.Salt)
	require.NoError(t, err)

	// The key handle and salt round-trip through secure storage.
	handle, err := registry.GetKeyHandle(ctx, material.Address)
	require.NoError(t, err)
	assert.Equal(t, result.KeyHandle, handle)

	salt, err := registry.GetDerivationSalt(ctx, material.Address)
	require.NoError(t, err)
	assert.Equal(t, result.Salt, salt)

	// The same security key still verifies against the stored binding.
	require.NoError(t, engine.VerifyBinding(ctx, record.CredentialIDHash, salt))

	// A different security key does not.
	stranger := hsk.NewEngine(mocks.NewAuthenticatorTransport("someone-elses-key"), false, 5*time.Second)
	err = stranger.VerifyBinding(ctx, record.CredentialIDHash, salt)
	assert.Equal(t, apperrors.CodeVerificationFailed, apperrors.Code(err))

	// Removal cleans up everything.
	require.NoError(t, registry.RemoveBinding(ctx, material.Address))
	_, err = registry.GetKeyHandle(ctx, material.Address)
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
}

// TestPRFStrategyFlow covers a platform and key that both support the PRF
// extension.
func TestPRFStrategyFlow(t *testing.T) {
	ctx := context.Background()
	_, registry := newCore(t)

	transport := mocks.NewAuthenticatorTransport("prf-capable-credential")
	transport.PRF = true
	engine := hsk.NewEngine(transport, true, 5*time.Second)
	require.Equal(t, types.StrategyPRFExtension, engine.RecommendedStrategy())

	events, err := engine.ListenForHSK(ctx)
	require.NoError(t, err)
	event := <-events
	require.NoError(t, event.Err)

	result, err := engine.DeriveKey(ctx, event.Proof)
	require.NoError(t, err)
	assert.Equal(t, types.StrategyPRFExtension, result.Strategy)

	material, err := hdkeys.Derive(testPhrase, types.ChainEthereum, 1)
	require.NoError(t, err)
	defer material.Zero()

	_, err = registry.CompleteBinding(ctx, "hsk-device-0002", result.KeyHandle,
		material.Address, result.CredentialIDHash, result.Strategy, result.Salt)
	require.NoError(t, err)
}

// TestRecoveryPhraseVaulting covers storing a recovery phrase in the vault
// and deriving keys from it after retrieval.
func TestRecoveryPhraseVaulting(t *testing.T) {
	ctx := context.Background()
	v, _ := newCore(t)

	require.NoError(t, v.Store(ctx, "wallet.recovery-phrase", []byte(testPhrase)))

	phrase, err := v.Retrieve(ctx, "wallet.recovery-phrase")
	require.NoError(t, err)

	material, err := hdkeys.Derive(string(phrase), types.ChainEthereum, 0)
	require.NoError(t, err)
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", material.Address)
	material.Zero()
}
