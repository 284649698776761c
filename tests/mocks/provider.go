package mocks

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/strongroom-wallet/strongroom/internal/txengine"
	"github.com/strongroom-wallet/strongroom/pkg/types"
)

// ChainDataProvider is an in-memory chain-data provider with settable
// balances and history.
type ChainDataProvider struct {
	mu        sync.Mutex
	balances  map[string]*big.Int
	history   map[string][]txengine.HistoryEntry
	nonces    map[string]uint64
	gasLimit  uint64
	feeCap    *big.Int
	broadcast [][]byte
}

// NewChainDataProvider creates a provider with sensible fee defaults.
func NewChainDataProvider() *ChainDataProvider {
	return &ChainDataProvider{
		balances: make(map[string]*big.Int),
		history:  make(map[string][]txengine.HistoryEntry),
		nonces:   make(map[string]uint64),
		gasLimit: 21_000,
		feeCap:   big.NewInt(30_000_000_000),
	}
}

// SetBalance sets an account balance in wei.
func (p *ChainDataProvider) SetBalance(address string, balance *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[address] = new(big.Int).Set(balance)
}

// AddHistory appends a history entry for an account.
func (p *ChainDataProvider) AddHistory(address string, entry txengine.HistoryEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history[address] = append(p.history[address], entry)
}

// Broadcasts returns every raw payload handed to Broadcast.
func (p *ChainDataProvider) Broadcasts() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.broadcast...)
}

func (p *ChainDataProvider) FetchBalance(ctx context.Context, address string, chain types.Chain) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if balance, ok := p.balances[address]; ok {
		return new(big.Int).Set(balance), nil
	}
	return new(big.Int), nil
}

func (p *ChainDataProvider) FetchHistory(ctx context.Context, address string, chain types.Chain) ([]txengine.HistoryEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]txengine.HistoryEntry(nil), p.history[address]...), nil
}

func (p *ChainDataProvider) EstimateGas(ctx context.Context, tx *types.Transaction) (uint64, error) {
	return p.gasLimit, nil
}

func (p *ChainDataProvider) GetTransactionCount(ctx context.Context, address string, chain types.Chain) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nonces[address], nil
}

func (p *ChainDataProvider) FetchPrice(ctx context.Context, chain types.Chain) (*big.Int, error) {
	return new(big.Int).Set(p.feeCap), nil
}

func (p *ChainDataProvider) Broadcast(ctx context.Context, raw []byte, chain types.Chain) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcast = append(p.broadcast, append([]byte(nil), raw...))
	return fmt.Sprintf("0x%x", crypto.Keccak256(raw)), nil
}

var _ txengine.Provider = (*ChainDataProvider)(nil)
