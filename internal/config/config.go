// Package config loads infrastructure-level configuration from environment
// variables. Component-level tunables (poisoning thresholds, clipboard
// timeout) carry defaults here so deployments can adjust them without code
// changes.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds infrastructure-level configuration.
type Config struct {
	// Credential store backend: "memory" or "postgres".
	CredStoreBackend string `envconfig:"CREDSTORE_BACKEND" default:"memory"`
	PostgresDSN      string `envconfig:"POSTGRES_DSN"`

	// Hardware security module backend: "local", "aws-kms", or "vault".
	HSMProvider       string `envconfig:"HSM_PROVIDER" default:"local"`
	HSMLocalMasterKey string `envconfig:"HSM_LOCAL_MASTER_KEY"`
	AWSKMSKeyID       string `envconfig:"AWS_KMS_KEY_ID"`
	AWSKMSRegion      string `envconfig:"AWS_KMS_REGION"`
	VaultAddress      string `envconfig:"VAULT_ADDR"`
	VaultToken        string `envconfig:"VAULT_TOKEN"`
	VaultTransitKey   string `envconfig:"VAULT_TRANSIT_KEY"`

	// A stuck biometric or security-key prompt must not block callers past
	// this deadline.
	HardwareTimeout time.Duration `envconfig:"HARDWARE_TIMEOUT" default:"60s"`

	// Address poisoning heuristics (hex characters after the chain marker).
	PoisonPrefixLen int `envconfig:"POISON_PREFIX_LEN" default:"6"`
	PoisonSuffixLen int `envconfig:"POISON_SUFFIX_LEN" default:"4"`

	// Clipboard auto-clear delay for sensitive content.
	ClipboardTimeout time.Duration `envconfig:"CLIPBOARD_TIMEOUT" default:"60s"`

	// Metrics/health endpoint.
	Port int `envconfig:"PORT" default:"8080"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.CredStoreBackend {
	case "memory":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when CREDSTORE_BACKEND is 'postgres'")
		}
	default:
		return fmt.Errorf("CREDSTORE_BACKEND must be 'memory' or 'postgres', got: %s", c.CredStoreBackend)
	}

	switch c.HSMProvider {
	case "local":
		if c.HSMLocalMasterKey == "" {
			return fmt.Errorf("HSM_LOCAL_MASTER_KEY is required when HSM_PROVIDER is 'local'")
		}
	case "aws-kms":
		if c.AWSKMSKeyID == "" || c.AWSKMSRegion == "" {
			return fmt.Errorf("AWS_KMS_KEY_ID and AWS_KMS_REGION are required when HSM_PROVIDER is 'aws-kms'")
		}
	case "vault":
		if c.VaultAddress == "" || c.VaultToken == "" || c.VaultTransitKey == "" {
			return fmt.Errorf("VAULT_ADDR, VAULT_TOKEN and VAULT_TRANSIT_KEY are required when HSM_PROVIDER is 'vault'")
		}
	default:
		return fmt.Errorf("HSM_PROVIDER must be 'local', 'aws-kms' or 'vault', got: %s", c.HSMProvider)
	}

	if c.HardwareTimeout <= 0 {
		return fmt.Errorf("HARDWARE_TIMEOUT must be positive")
	}

	if c.PoisonPrefixLen < 2 || c.PoisonSuffixLen < 2 {
		return fmt.Errorf("poisoning prefix/suffix lengths must be at least 2")
	}

	return nil
}
