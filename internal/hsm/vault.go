package hsm

import (
	"context"
	"encoding/base64"
	"fmt"

	vault "github.com/hashicorp/vault/api"
)

// VaultModule implements Module using the HashiCorp Vault Transit engine.
type VaultModule struct {
	transitKey string
	client     *vault.Client
}

// NewVaultModule creates a Vault Transit module.
func NewVaultModule(address, token, transitKey string) (*VaultModule, error) {
	if address == "" {
		return nil, fmt.Errorf("Vault address is required")
	}
	if token == "" {
		return nil, fmt.Errorf("Vault token is required")
	}
	if transitKey == "" {
		return nil, fmt.Errorf("Vault transit key name is required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultModule{
		transitKey: transitKey,
		client:     client,
	}, nil
}

// WrapKey encrypts a data key using the Transit engine.
func (m *VaultModule) WrapKey(ctx context.Context, dataKey []byte) ([]byte, error) {
	// Transit requires base64-encoded plaintext.
	plaintext := base64.StdEncoding.EncodeToString(dataKey)

	path := fmt.Sprintf("transit/encrypt/%s", m.transitKey)
	secret, err := m.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"plaintext": plaintext,
	})
	if err != nil {
		return nil, translateErr(err, "vault transit encrypt")
	}

	if secret == nil || secret.Data == nil {
		return nil, translateErr(fmt.Errorf("empty response"), "vault transit encrypt")
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, translateErr(fmt.Errorf("ciphertext not found in response"), "vault transit encrypt")
	}

	// The ciphertext is a vault:v1:... string.
	return []byte(ciphertext), nil
}

// UnwrapKey decrypts a wrapped data key using the Transit engine.
func (m *VaultModule) UnwrapKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/decrypt/%s", m.transitKey)
	secret, err := m.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": string(wrapped),
	})
	if err != nil {
		return nil, translateErr(err, "vault transit decrypt")
	}

	if secret == nil || secret.Data == nil {
		return nil, translateErr(fmt.Errorf("empty response"), "vault transit decrypt")
	}

	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, translateErr(fmt.Errorf("plaintext not found in response"), "vault transit decrypt")
	}

	dataKey, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, translateErr(err, "vault transit decrypt")
	}

	return dataKey, nil
}

// Provider returns the backend name.
func (m *VaultModule) Provider() string { return string(ProviderVault) }

// HardwareBacked reports true; Transit keys never leave Vault.
func (m *VaultModule) HardwareBacked() bool { return true }

// RequiresUserAuth reports false; Vault gates on tokens, not a user gesture.
func (m *VaultModule) RequiresUserAuth() bool { return false }

var _ Module = (*VaultModule)(nil)
