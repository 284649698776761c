package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CREDSTORE_BACKEND", "memory")
	t.Setenv("HSM_PROVIDER", "local")
	t.Setenv("HSM_LOCAL_MASTER_KEY", "0000000000000000000000000000000000000000000000000000000000000000")
}

func TestLoad(t *testing.T) {
	t.Run("loads with defaults", func(t *testing.T) {
		setBaseEnv(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.CredStoreBackend)
		assert.Equal(t, 60*time.Second, cfg.HardwareTimeout)
		assert.Equal(t, 6, cfg.PoisonPrefixLen)
		assert.Equal(t, 4, cfg.PoisonSuffixLen)
		assert.Equal(t, 60*time.Second, cfg.ClipboardTimeout)
		assert.Equal(t, 8080, cfg.Port)
	})

	t.Run("overrides from environment", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("HARDWARE_TIMEOUT", "30s")
		t.Setenv("POISON_PREFIX_LEN", "8")
		t.Setenv("PORT", "9090")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, cfg.HardwareTimeout)
		assert.Equal(t, 8, cfg.PoisonPrefixLen)
		assert.Equal(t, 9090, cfg.Port)
	})

	t.Run("postgres backend requires a DSN", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("CREDSTORE_BACKEND", "postgres")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "POSTGRES_DSN")
	})

	t.Run("rejects unknown credential store backend", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("CREDSTORE_BACKEND", "etcd")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("local HSM requires a master key", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("HSM_LOCAL_MASTER_KEY", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HSM_LOCAL_MASTER_KEY")
	})

	t.Run("aws-kms HSM requires key id and region", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("HSM_PROVIDER", "aws-kms")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AWS_KMS_KEY_ID")
	})

	t.Run("vault HSM requires address, token, and transit key", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("HSM_PROVIDER", "vault")
		t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("rejects non-positive hardware timeout", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("HARDWARE_TIMEOUT", "0s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HARDWARE_TIMEOUT")
	})

	t.Run("rejects tiny poisoning thresholds", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("POISON_PREFIX_LEN", "1")

		_, err := Load()
		assert.Error(t, err)
	})
}
