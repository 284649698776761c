package binding

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongroom-wallet/strongroom/internal/credstore"
	"github.com/strongroom-wallet/strongroom/internal/hsm"
	"github.com/strongroom-wallet/strongroom/internal/vault"
	apperrors "github.com/strongroom-wallet/strongroom/pkg/errors"
	"github.com/strongroom-wallet/strongroom/pkg/types"
)

const (
	testHSKID   = "hsk-device-0001"
	testAddress = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"
)

func newTestRegistry(t *testing.T) (*Registry, credstore.Store) {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	module, err := hsm.NewLocalModule(hex.EncodeToString(key))
	require.NoError(t, err)

	store := credstore.NewMemoryStore()
	return NewRegistry(store, vault.New(module, store)), store
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestRegistry_CompleteBinding(t *testing.T) {
	ctx := context.Background()

	t.Run("persists a valid binding", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		b, err := r.CompleteBinding(ctx, testHSKID, randomBytes(t, 32), testAddress,
			randomBytes(t, 32), types.StrategySignatureBased, randomBytes(t, 32))
		require.NoError(t, err)

		assert.Equal(t, testAddress, b.Address)
		assert.Equal(t, types.StrategySignatureBased, b.DerivationStrategy)
		assert.NotEmpty(t, b.DerivationSaltRef)
		assert.False(t, b.CreatedAt.IsZero())

		bound, err := r.IsWalletBound(ctx, testAddress)
		require.NoError(t, err)
		assert.True(t, bound)
	})

	t.Run("rejects a duplicate address", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		_, err := r.CompleteBinding(ctx, testHSKID, randomBytes(t, 32), testAddress,
			randomBytes(t, 32), types.StrategySignatureBased, randomBytes(t, 32))
		require.NoError(t, err)

		_, err = r.BindToExistingWallet(ctx, "hsk-device-0002", randomBytes(t, 32), testAddress,
			randomBytes(t, 32), types.StrategySignatureBased, randomBytes(t, 32))
		assert.Equal(t, apperrors.CodeAlreadyBound, apperrors.Code(err))
	})

	t.Run("validates before persisting", func(t *testing.T) {
		r, store := newTestRegistry(t)

		cases := []struct {
			name      string
			hskID     string
			keyHandle []byte
			address   string
			salt      []byte
			wantCode  string
		}{
			{"short hsk id", "short", randomBytes(t, 32), testAddress, randomBytes(t, 32), apperrors.CodeBindingFailed},
			{"wrong key handle size", testHSKID, randomBytes(t, 16), testAddress, randomBytes(t, 32), apperrors.CodeBindingFailed},
			{"all-zero key handle", testHSKID, make([]byte, 32), testAddress, randomBytes(t, 32), apperrors.CodeBindingFailed},
			{"malformed address", testHSKID, randomBytes(t, 32), "0x123", randomBytes(t, 32), apperrors.CodeInvalidAddress},
			{"missing salt", testHSKID, randomBytes(t, 32), testAddress, nil, apperrors.CodeBindingFailed},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := r.CompleteBinding(ctx, tc.hskID, tc.keyHandle, tc.address,
					randomBytes(t, 32), types.StrategySignatureBased, tc.salt)
				assert.Equal(t, tc.wantCode, apperrors.Code(err))
			})
		}

		// No record of any kind survived a failed binding.
		_, status := store.Get(ctx, "hsk.bindings")
		assert.Equal(t, credstore.StatusNotFound, status)
	})

	t.Run("concurrent bindings for one address yield one winner", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		const attempts = 8
		errs := make([]error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = r.CompleteBinding(ctx, testHSKID, randomBytes(t, 32), testAddress,
					randomBytes(t, 32), types.StrategySignatureBased, randomBytes(t, 32))
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				assert.Equal(t, apperrors.CodeAlreadyBound, apperrors.Code(err))
			}
		}
		assert.Equal(t, 1, succeeded)
	})
}

func TestRegistry_Serialization(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)

	keyHandle := randomBytes(t, 32)
	salt := randomBytes(t, 32)
	credentialHash := randomBytes(t, 32)

	_, err := r.CompleteBinding(ctx, testHSKID, keyHandle, testAddress,
		credentialHash, types.StrategySignatureBased, salt)
	require.NoError(t, err)

	blob, status := store.Get(ctx, "hsk.bindings")
	require.Equal(t, credstore.StatusSuccess, status)

	t.Run("serialized list never contains the key handle or salt", func(t *testing.T) {
		encodedHandle, _ := json.Marshal(keyHandle)
		encodedSalt, _ := json.Marshal(salt)
		assert.NotContains(t, string(blob), string(encodedHandle))
		assert.NotContains(t, string(blob), string(encodedSalt))
	})

	t.Run("serialized list carries the credential hash", func(t *testing.T) {
		var bindings []*types.HSKBinding
		require.NoError(t, json.Unmarshal(blob, &bindings))
		require.Len(t, bindings, 1)
		assert.Equal(t, credentialHash, bindings[0].CredentialIDHash)
	})
}

func TestRegistry_Lookups(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	keyHandle := randomBytes(t, 32)
	salt := randomBytes(t, 32)
	_, err := r.CompleteBinding(ctx, testHSKID, keyHandle, testAddress,
		randomBytes(t, 32), types.StrategySignatureBased, salt)
	require.NoError(t, err)

	t.Run("get binding by address", func(t *testing.T) {
		b, err := r.GetBinding(ctx, testAddress)
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.Equal(t, testHSKID, b.HSKID)
	})

	t.Run("get binding for unbound address returns nil", func(t *testing.T) {
		b, err := r.GetBinding(ctx, "0x0000000000000000000000000000000000000001")
		require.NoError(t, err)
		assert.Nil(t, b)
	})

	t.Run("get bindings by hsk id", func(t *testing.T) {
		bindings, err := r.GetBindingByHSK(ctx, testHSKID)
		require.NoError(t, err)
		require.Len(t, bindings, 1)
		assert.Equal(t, testAddress, bindings[0].Address)
	})

	t.Run("key handle round-trips through the vault", func(t *testing.T) {
		got, err := r.GetKeyHandle(ctx, testAddress)
		require.NoError(t, err)
		assert.Equal(t, keyHandle, got)
	})

	t.Run("key handle for unbound address is refused", func(t *testing.T) {
		_, err := r.GetKeyHandle(ctx, "0x0000000000000000000000000000000000000001")
		assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
	})

	t.Run("derivation salt round-trips sharded", func(t *testing.T) {
		got, err := r.GetDerivationSalt(ctx, testAddress)
		require.NoError(t, err)
		assert.Equal(t, salt, got)
	})

	t.Run("update last used stamps the record", func(t *testing.T) {
		before, err := r.GetBinding(ctx, testAddress)
		require.NoError(t, err)

		require.NoError(t, r.UpdateLastUsed(ctx, testAddress))

		after, err := r.GetBinding(ctx, testAddress)
		require.NoError(t, err)
		assert.True(t, !after.LastUsedAt.Before(before.LastUsedAt))
	})

	t.Run("update last used on unbound address reports not found", func(t *testing.T) {
		err := r.UpdateLastUsed(ctx, "0x0000000000000000000000000000000000000001")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestRegistry_RemoveBinding(t *testing.T) {
	ctx := context.Background()

	t.Run("removes key handle, salt, and record", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		_, err := r.CompleteBinding(ctx, testHSKID, randomBytes(t, 32), testAddress,
			randomBytes(t, 32), types.StrategySignatureBased, randomBytes(t, 32))
		require.NoError(t, err)

		require.NoError(t, r.RemoveBinding(ctx, testAddress))

		bound, err := r.IsWalletBound(ctx, testAddress)
		require.NoError(t, err)
		assert.False(t, bound)

		_, err = r.GetKeyHandle(ctx, testAddress)
		assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)

		salt, err := r.GetDerivationSalt(ctx, testAddress)
		require.NoError(t, err)
		assert.Nil(t, salt)
	})

	t.Run("tolerates an already absent vault key", func(t *testing.T) {
		r, store := newTestRegistry(t)

		_, err := r.CompleteBinding(ctx, testHSKID, randomBytes(t, 32), testAddress,
			randomBytes(t, 32), types.StrategySignatureBased, randomBytes(t, 32))
		require.NoError(t, err)

		// Simulate a vault entry lost out of band.
		require.Equal(t, credstore.StatusSuccess, store.Delete(ctx, "hsk.key."+testAddress))

		require.NoError(t, r.RemoveBinding(ctx, testAddress))
	})

	t.Run("removal of unbound address reports not found", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		assert.ErrorIs(t, r.RemoveBinding(ctx, testAddress), apperrors.ErrNotFound)
	})

	t.Run("address can be bound again after removal", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		_, err := r.CompleteBinding(ctx, testHSKID, randomBytes(t, 32), testAddress,
			randomBytes(t, 32), types.StrategySignatureBased, randomBytes(t, 32))
		require.NoError(t, err)
		require.NoError(t, r.RemoveBinding(ctx, testAddress))

		_, err = r.CompleteBinding(ctx, "hsk-device-0002", randomBytes(t, 32), testAddress,
			randomBytes(t, 32), types.StrategySignatureBased, randomBytes(t, 32))
		require.NoError(t, err)
	})
}
