package hsm

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/strongroom-wallet/strongroom/pkg/errors"
)

func testMasterKeyHex(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return hex.EncodeToString(key)
}

func TestNewLocalModule(t *testing.T) {
	t.Run("creates module with valid key", func(t *testing.T) {
		module, err := NewLocalModule(testMasterKeyHex(t))
		require.NoError(t, err)
		require.NotNil(t, module)
		assert.Equal(t, "local", module.Provider())
		assert.False(t, module.HardwareBacked())
		assert.False(t, module.RequiresUserAuth())
	})

	t.Run("returns error with empty key", func(t *testing.T) {
		module, err := NewLocalModule("")
		assert.Error(t, err)
		assert.Nil(t, module)
		assert.Contains(t, err.Error(), "master key is required")
	})

	t.Run("returns error with non-hex key", func(t *testing.T) {
		_, err := NewLocalModule("not-hex!")
		assert.Error(t, err)
	})

	t.Run("returns error with wrong key length", func(t *testing.T) {
		_, err := NewLocalModule("deadbeef")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "32 bytes")
	})
}

func TestLocalModule_WrapUnwrap(t *testing.T) {
	module, err := NewLocalModule(testMasterKeyHex(t))
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("round-trips a data key", func(t *testing.T) {
		dataKey := make([]byte, 32)
		_, err := rand.Read(dataKey)
		require.NoError(t, err)

		wrapped, err := module.WrapKey(ctx, dataKey)
		require.NoError(t, err)
		assert.NotEqual(t, dataKey, wrapped)

		unwrapped, err := module.UnwrapKey(ctx, wrapped)
		require.NoError(t, err)
		assert.Equal(t, dataKey, unwrapped)
	})

	t.Run("different wraps produce different ciphertexts", func(t *testing.T) {
		dataKey := []byte("0123456789abcdef0123456789abcdef")

		wrapped1, err := module.WrapKey(ctx, dataKey)
		require.NoError(t, err)
		wrapped2, err := module.WrapKey(ctx, dataKey)
		require.NoError(t, err)

		assert.NotEqual(t, wrapped1, wrapped2)
	})

	t.Run("rejects tampered ciphertext", func(t *testing.T) {
		wrapped, err := module.WrapKey(ctx, []byte("0123456789abcdef0123456789abcdef"))
		require.NoError(t, err)

		wrapped[len(wrapped)-1] ^= 0xff
		_, err = module.UnwrapKey(ctx, wrapped)
		assert.Error(t, err)
		assert.Equal(t, apperrors.CodeHardwareUnavailable, apperrors.Code(err))
	})

	t.Run("unwrap honors cancelled context", func(t *testing.T) {
		wrapped, err := module.WrapKey(ctx, []byte("0123456789abcdef0123456789abcdef"))
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err = module.UnwrapKey(cancelled, wrapped)
		assert.ErrorIs(t, err, apperrors.ErrUserCancelled)
	})

	t.Run("keys wrapped under one master key fail under another", func(t *testing.T) {
		other, err := NewLocalModule(testMasterKeyHex(t))
		require.NoError(t, err)

		wrapped, err := module.WrapKey(ctx, []byte("0123456789abcdef0123456789abcdef"))
		require.NoError(t, err)

		_, err = other.UnwrapKey(ctx, wrapped)
		assert.Error(t, err)
	})
}
