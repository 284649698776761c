package txengine

import (
	"context"
	"math/big"
	"time"

	"github.com/strongroom-wallet/strongroom/pkg/types"
)

// HistoryEntry is one past transaction of an account, as reported by the
// chain-data provider.
type HistoryEntry struct {
	Counterparty string
	Value        *big.Int
	Outgoing     bool
	Timestamp    time.Time
}

// Provider is the external chain-data collaborator: balance and history
// lookups, fee data, nonce, gas estimation, and broadcast. Implementations
// talk to RPC nodes or indexer APIs; the engine never does network I/O of
// its own.
type Provider interface {
	// FetchBalance returns the current native-asset balance in the chain's
	// smallest unit.
	FetchBalance(ctx context.Context, address string, chain types.Chain) (*big.Int, error)

	// FetchHistory returns recent transactions for an address, newest first.
	FetchHistory(ctx context.Context, address string, chain types.Chain) ([]HistoryEntry, error)

	// EstimateGas estimates the gas limit for a transaction.
	EstimateGas(ctx context.Context, tx *types.Transaction) (uint64, error)

	// GetTransactionCount returns the next nonce for an address.
	GetTransactionCount(ctx context.Context, address string, chain types.Chain) (uint64, error)

	// FetchPrice returns the suggested max fee per gas in the chain's
	// smallest unit.
	FetchPrice(ctx context.Context, chain types.Chain) (*big.Int, error)

	// Broadcast submits a signed raw transaction and returns its hash.
	Broadcast(ctx context.Context, raw []byte, chain types.Chain) (string, error)
}
