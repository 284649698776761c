// Package types holds the shared domain types of the wallet core:
// chains, transactions, simulation results, key material, and HSK bindings.
package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Chain identifies a supported blockchain.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainBitcoin  Chain = "bitcoin"
	ChainSolana   Chain = "solana"
)

// Valid reports whether the chain is one of the supported chains.
func (c Chain) Valid() bool {
	switch c {
	case ChainEthereum, ChainBitcoin, ChainSolana:
		return true
	}
	return false
}

// CoinType returns the BIP44 coin type for the chain.
func (c Chain) CoinType() uint32 {
	switch c {
	case ChainEthereum:
		return 60
	case ChainBitcoin:
		return 0
	case ChainSolana:
		return 501
	}
	return 0
}

// Transaction is an outgoing transaction awaiting simulation and signing.
// It is immutable once constructed; retries build a new Transaction.
type Transaction struct {
	From                 string
	To                   string
	Value                *big.Int
	Data                 []byte
	Nonce                uint64
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	ChainID              int64
}

// Fingerprint returns a stable identity for the transaction used to match
// a signing request against its most recent simulation.
func (t *Transaction) Fingerprint() string {
	value := "0"
	if t.Value != nil {
		value = t.Value.String()
	}
	feeCap := "0"
	if t.MaxFeePerGas != nil {
		feeCap = t.MaxFeePerGas.String()
	}
	return fmt.Sprintf("%s|%s|%s|%d|%d|%s|%d|%x", t.From, t.To, value, t.Nonce, t.GasLimit, feeCap, t.ChainID, t.Data)
}

// SimulationResult is produced fresh per simulation call and is never cached
// across nonce changes.
type SimulationResult struct {
	Success         bool
	EstimatedGasUsed uint64
	BalanceChanges  map[string]*big.Int
	Error           string
}

// RiskLevel grades a risk alert.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskAlert annotates a transaction for user-facing confirmation. Alerts never
// block signing.
type RiskAlert struct {
	Level       RiskLevel
	Description string
}

// SignedTransaction is the output of the signing stage, handed to the
// external broadcaster.
type SignedTransaction struct {
	Raw       []byte
	Signature []byte
	TxHash    string
}

// DerivedKeyMaterial is chain-specific key material derived on demand from a
// recovery phrase. It is never persisted; callers must Zero it when the
// signing scope ends.
type DerivedKeyMaterial struct {
	PrivateKey []byte
	Chain      Chain
	Address    string
}

// Zero wipes the private key bytes in place.
func (m *DerivedKeyMaterial) Zero() {
	for i := range m.PrivateKey {
		m.PrivateKey[i] = 0
	}
}

// DerivationStrategy names how an HSK-bound wallet key was derived.
type DerivationStrategy string

const (
	// StrategyLegacyCredentialID derives solely from the device-issued
	// credential identifier. Retained only for migrating pre-existing
	// bindings; never offered for new wallets.
	StrategyLegacyCredentialID DerivationStrategy = "legacy"

	// StrategySignatureBased runs the authenticator's signed assertion plus
	// the session challenge through HKDF with a per-session salt.
	StrategySignatureBased DerivationStrategy = "signatureBased"

	// StrategyPRFExtension uses the authenticator's PRF extension output.
	StrategyPRFExtension DerivationStrategy = "prfExtension"
)

// RequiresSalt reports whether the strategy needs a persisted derivation salt
// to re-derive the key.
func (s DerivationStrategy) RequiresSalt() bool {
	return s == StrategySignatureBased || s == StrategyPRFExtension
}

// HSKBinding maps a wallet address to a hardware security key.
//
// The serialized form deliberately carries only the one-way hash of the
// credential identifier and a reference to the derivation salt. The 32-byte
// derived key handle lives exclusively in the secure vault, keyed by wallet
// address, and must never appear here.
type HSKBinding struct {
	ID                uuid.UUID          `json:"id"`
	HSKID             string             `json:"hsk_id"`
	Address           string             `json:"address"`
	CredentialIDHash  []byte             `json:"credential_id_hash"`
	DerivationStrategy DerivationStrategy `json:"derivation_strategy"`
	DerivationSaltRef string             `json:"derivation_salt_ref,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	LastUsedAt        time.Time          `json:"last_used_at"`
}
