// Package hsm abstracts the hardware security module that protects the
// vault's envelope keys: a non-exportable key that wraps and unwraps
// per-record data keys. Backends range from a local dev master key to AWS KMS
// and HashiCorp Vault Transit, where key material never leaves the service.
package hsm

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/strongroom-wallet/strongroom/pkg/errors"
)

// Module wraps and unwraps data keys with a non-exportable key.
type Module interface {
	// WrapKey encrypts a data key under the module's key.
	WrapKey(ctx context.Context, dataKey []byte) ([]byte, error)

	// UnwrapKey decrypts a wrapped data key. Depending on the backend's key
	// policy this may require a user authentication gesture and can block
	// until the platform authenticator responds or ctx expires.
	UnwrapKey(ctx context.Context, wrapped []byte) ([]byte, error)

	// Provider returns the backend name (e.g. "local", "aws-kms", "vault").
	Provider() string

	// HardwareBacked reports whether the wrapping key is held in dedicated
	// hardware and cannot be exported.
	HardwareBacked() bool

	// RequiresUserAuth reports whether UnwrapKey triggers a platform
	// authentication gesture.
	RequiresUserAuth() bool
}

// ProviderType represents supported module backends.
type ProviderType string

const (
	// ProviderLocal uses a local master key (development and tests only).
	ProviderLocal ProviderType = "local"

	// ProviderAWSKMS uses an AWS KMS customer master key.
	ProviderAWSKMS ProviderType = "aws-kms"

	// ProviderVault uses the HashiCorp Vault Transit engine.
	ProviderVault ProviderType = "vault"
)

// Config contains configuration for module backends.
type Config struct {
	Provider string

	// Local backend
	LocalMasterKeyHex string

	// AWS KMS backend
	AWSKMSKeyID  string
	AWSKMSRegion string

	// Vault backend
	VaultAddress    string
	VaultToken      string
	VaultTransitKey string
}

// New creates a Module based on the configuration.
func New(cfg *Config) (Module, error) {
	switch ProviderType(cfg.Provider) {
	case ProviderLocal, "":
		return NewLocalModule(cfg.LocalMasterKeyHex)

	case ProviderAWSKMS:
		return NewAWSKMSModule(cfg.AWSKMSKeyID, cfg.AWSKMSRegion)

	case ProviderVault:
		return NewVaultModule(cfg.VaultAddress, cfg.VaultToken, cfg.VaultTransitKey)

	default:
		return nil, fmt.Errorf("unsupported HSM provider: %s (supported: %s, %s, %s)",
			cfg.Provider, ProviderLocal, ProviderAWSKMS, ProviderVault)
	}
}

// translateErr maps backend failures onto the core taxonomy. A context
// deadline becomes Timeout, a context cancel becomes UserCancelled; anything
// else is HardwareUnavailable with the raw error kept as detail.
func translateErr(err error, op string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.ErrTimeout
	case errors.Is(err, context.Canceled):
		return apperrors.ErrUserCancelled
	default:
		return apperrors.NewWithDetail(apperrors.CodeHardwareUnavailable,
			"Security hardware unavailable", fmt.Sprintf("%s: %v", op, err))
	}
}
