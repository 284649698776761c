// Package txengine validates, simulates, risk-scores, and signs outgoing
// transactions. Chain data comes from an injected provider; the engine does
// no network I/O of its own and signs only transactions whose most recent
// simulation succeeded.
package txengine

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/strongroom-wallet/strongroom/internal/guard"
	"github.com/strongroom-wallet/strongroom/internal/logger"
	"github.com/strongroom-wallet/strongroom/internal/metrics"
	apperrors "github.com/strongroom-wallet/strongroom/pkg/errors"
	"github.com/strongroom-wallet/strongroom/pkg/types"
)

var evmAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// RoutePlan carries the advisory gas and nonce values fetched for a
// transaction attempt. They feed simulation and final construction but are
// not authoritative until a simulation over them succeeds.
type RoutePlan struct {
	GasLimit     uint64
	Nonce        uint64
	MaxFeePerGas *big.Int
}

// Engine is the transaction engine. It remembers the outcome of the most
// recent simulation per transaction fingerprint so signing can be gated on
// it.
type Engine struct {
	provider Provider
	detector *guard.PoisoningDetector

	mu      sync.Mutex
	lastSim map[string]bool
}

// New creates a transaction engine over a chain-data provider and a
// poisoning detector.
func New(provider Provider, detector *guard.PoisoningDetector) *Engine {
	return &Engine{
		provider: provider,
		detector: detector,
		lastSim:  make(map[string]bool),
	}
}

// Simulate checks that the sender can afford value plus the worst-case fee.
// The total cost is computed in arbitrary-precision integers; native 64-bit
// arithmetic overflows for realistic wei amounts. The result is recorded
// against the transaction's fingerprint and gates Sign.
func (e *Engine) Simulate(ctx context.Context, tx *types.Transaction) (*types.SimulationResult, error) {
	result, err := e.simulate(ctx, tx)
	metrics.Simulations.WithLabelValues(metrics.Outcome(err)).Inc()
	return result, err
}

func (e *Engine) simulate(ctx context.Context, tx *types.Transaction) (*types.SimulationResult, error) {
	if err := validate(tx); err != nil {
		return nil, err
	}

	balance, err := e.provider.FetchBalance(ctx, tx.From, types.ChainEthereum)
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.CodeInternal, "Balance lookup failed", err.Error())
	}

	cost := totalCost(tx)

	result := &types.SimulationResult{
		EstimatedGasUsed: tx.GasLimit,
		BalanceChanges:   make(map[string]*big.Int),
	}

	if cost.Cmp(balance) > 0 {
		result.Success = false
		result.Error = "Insufficient funds"
	} else {
		result.Success = true
		result.BalanceChanges[tx.From] = new(big.Int).Neg(cost)
		result.BalanceChanges[tx.To] = new(big.Int).Set(value(tx))
	}

	e.mu.Lock()
	e.lastSim[tx.Fingerprint()] = result.Success
	e.mu.Unlock()

	return result, nil
}

// Route fetches the advisory gas estimate, suggested fee, and next nonce for
// a transaction attempt. Values are re-fetched on every call; a stale cached
// nonce would collide when multiple transactions are in flight for the same
// account.
func (e *Engine) Route(ctx context.Context, tx *types.Transaction) (*RoutePlan, error) {
	gasLimit, err := e.provider.EstimateGas(ctx, tx)
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.CodeInternal, "Gas estimation failed", err.Error())
	}

	nonce, err := e.provider.GetTransactionCount(ctx, tx.From, types.ChainEthereum)
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.CodeInternal, "Nonce lookup failed", err.Error())
	}

	feeCap, err := e.provider.FetchPrice(ctx, types.ChainEthereum)
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.CodeInternal, "Fee lookup failed", err.Error())
	}

	return &RoutePlan{GasLimit: gasLimit, Nonce: nonce, MaxFeePerGas: feeCap}, nil
}

// Analyze produces zero or more risk alerts for a transaction. Alerts
// annotate the confirmation screen and never block signing; if history is
// unavailable the analysis degrades to a single low-severity notice.
func (e *Engine) Analyze(ctx context.Context, tx *types.Transaction) []types.RiskAlert {
	var alerts []types.RiskAlert

	history, err := e.provider.FetchHistory(ctx, tx.From, types.ChainEthereum)
	if err != nil {
		logger.Warn(ctx, "history unavailable for risk analysis",
			"address", logger.Fingerprint(tx.From))
		alerts = append(alerts, types.RiskAlert{
			Level:       types.RiskLow,
			Description: "Transaction history unavailable; risk checks were skipped",
		})
		e.count(alerts)
		return alerts
	}

	var counterparties []string
	seen := false
	maxOutgoing := new(big.Int)
	for _, entry := range history {
		counterparties = append(counterparties, entry.Counterparty)
		if strings.EqualFold(entry.Counterparty, tx.To) {
			seen = true
		}
		if entry.Outgoing && entry.Value != nil && entry.Value.Cmp(maxOutgoing) > 0 {
			maxOutgoing.Set(entry.Value)
		}
	}

	if verdict := e.detector.Analyze(tx.To, counterparties); !verdict.Safe {
		alerts = append(alerts, types.RiskAlert{
			Level:       types.RiskCritical,
			Description: verdict.Reason,
		})
	} else if !seen && len(history) > 0 {
		alerts = append(alerts, types.RiskAlert{
			Level:       types.RiskMedium,
			Description: "You have never sent to this address before",
		})
	}

	if maxOutgoing.Sign() > 0 && value(tx).Cmp(maxOutgoing) > 0 {
		alerts = append(alerts, types.RiskAlert{
			Level:       types.RiskHigh,
			Description: "This amount is larger than any transaction you have sent before",
		})
	}

	e.count(alerts)
	return alerts
}

func (e *Engine) count(alerts []types.RiskAlert) {
	for _, a := range alerts {
		metrics.RiskAlerts.WithLabelValues(string(a.Level)).Inc()
	}
}

// Sign produces a signed EIP-1559 transaction. It refuses unless the most
// recent simulation of this exact transaction succeeded; any change to the
// transaction, including a fresh nonce, requires a new simulation. A
// successful sign consumes the simulation record.
func (e *Engine) Sign(ctx context.Context, tx *types.Transaction, material *types.DerivedKeyMaterial) (*types.SignedTransaction, error) {
	signed, err := e.sign(ctx, tx, material)
	metrics.Signings.WithLabelValues(string(types.ChainEthereum), metrics.Outcome(err)).Inc()
	return signed, err
}

func (e *Engine) sign(ctx context.Context, tx *types.Transaction, material *types.DerivedKeyMaterial) (*types.SignedTransaction, error) {
	if material == nil || material.Chain != types.ChainEthereum {
		return nil, apperrors.NewWithDetail(apperrors.CodeInternal,
			"Signing requires ethereum key material", "")
	}
	if !strings.EqualFold(material.Address, tx.From) {
		return nil, apperrors.InvalidAddress("key material does not belong to the sender")
	}

	fingerprint := tx.Fingerprint()
	e.mu.Lock()
	ok := e.lastSim[fingerprint]
	e.mu.Unlock()
	if !ok {
		return nil, apperrors.ErrSimulationRequired
	}

	ethKey, err := ethcrypto.ToECDSA(material.PrivateKey)
	if err != nil {
		return nil, apperrors.DerivationFailed(fmt.Sprintf("secp256k1 key: %v", err))
	}

	chainID := big.NewInt(tx.ChainID)
	to := ethcommon.HexToAddress(tx.To)
	unsigned := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     tx.Nonce,
		GasTipCap: orZero(tx.MaxPriorityFeePerGas),
		GasFeeCap: orZero(tx.MaxFeePerGas),
		Gas:       tx.GasLimit,
		To:        &to,
		Value:     value(tx),
		Data:      tx.Data,
	})

	signer := ethtypes.NewLondonSigner(chainID)
	signature, err := ethcrypto.Sign(signer.Hash(unsigned).Bytes(), ethKey)
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.CodeInternal, "Signing failed", err.Error())
	}

	signedTx, err := unsigned.WithSignature(signer, signature)
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.CodeInternal, "Signature attachment failed", err.Error())
	}

	raw, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.CodeInternal, "Transaction encoding failed", err.Error())
	}

	e.mu.Lock()
	delete(e.lastSim, fingerprint)
	e.mu.Unlock()

	logger.Info(ctx, "transaction signed",
		"from", logger.Fingerprint(tx.From),
		"hash", signedTx.Hash().Hex())

	return &types.SignedTransaction{
		Raw:       raw,
		Signature: signature,
		TxHash:    signedTx.Hash().Hex(),
	}, nil
}

// Broadcast hands a signed payload to the provider and records the hash.
func (e *Engine) Broadcast(ctx context.Context, signed *types.SignedTransaction) (string, error) {
	hash, err := e.provider.Broadcast(ctx, signed.Raw, types.ChainEthereum)
	if err != nil {
		return "", apperrors.NewWithDetail(apperrors.CodeInternal, "Broadcast failed", err.Error())
	}
	logger.Info(ctx, "transaction broadcast", "hash", hash)
	return hash, nil
}

func validate(tx *types.Transaction) error {
	if !evmAddressPattern.MatchString(tx.From) {
		return apperrors.InvalidAddress("sender must be 0x followed by 40 hex characters")
	}
	if !evmAddressPattern.MatchString(tx.To) {
		return apperrors.InvalidAddress("recipient must be 0x followed by 40 hex characters")
	}
	if tx.Value != nil && tx.Value.Sign() < 0 {
		return apperrors.New(apperrors.CodeInternal, "Transaction value must not be negative")
	}
	return nil
}

// totalCost computes value + gasLimit * maxFeePerGas in wide integers.
func totalCost(tx *types.Transaction) *big.Int {
	fee := new(big.Int).Mul(
		new(big.Int).SetUint64(tx.GasLimit),
		orZero(tx.MaxFeePerGas),
	)
	return fee.Add(fee, value(tx))
}

func value(tx *types.Transaction) *big.Int {
	return orZero(tx.Value)
}

// orZero treats a nil big.Int field as zero.
func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
