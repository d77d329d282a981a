// Package bank provides in-memory implementations of the external
// collaborators the ledger depends on: the token bank that moves value
// between accounts and the exchange-rate oracle for yield-bearing assets.
// The ledger itself only ever sees the interfaces in the state package.
package bank

import (
	"fmt"
	"sync"

	"github.com/streampay/streampay/foundation/money"
	"github.com/streampay/streampay/foundation/streaming/database"
	"github.com/streampay/streampay/foundation/streaming/genesis"
)

// Bank maintains per-asset account balances in memory, seeded from the
// genesis file. It implements the state.Transferor interface with the
// ledger's escrow account as the owner side of Transfer calls.
type Bank struct {
	mu       sync.RWMutex
	owner    database.AccountID
	balances map[database.AssetID]map[database.AccountID]uint64
}

// New constructs a bank from the genesis balances with the specified
// account as the owner of outbound transfers.
func New(gen genesis.Genesis, owner database.AccountID) (*Bank, error) {
	b := Bank{
		owner:    owner,
		balances: make(map[database.AssetID]map[database.AccountID]uint64),
	}

	for assetStr, accounts := range gen.Balances {
		assetID, err := database.ToAssetID(assetStr)
		if err != nil {
			return nil, fmt.Errorf("genesis asset %q: %w", assetStr, err)
		}

		b.balances[assetID] = make(map[database.AccountID]uint64)
		for accountStr, amount := range accounts {
			accountID, err := database.ToAccountID(accountStr)
			if err != nil {
				return nil, fmt.Errorf("genesis account %q: %w", accountStr, err)
			}
			b.balances[assetID][accountID] = amount
		}
	}

	return &b, nil
}

// Transfer moves the amount from the owner account to the specified
// account. Each call fully succeeds or fully fails.
func (b *Bank) Transfer(asset database.AssetID, to database.AccountID, amount uint64) error {
	return b.TransferFrom(asset, b.owner, to, amount)
}

// TransferFrom moves the amount between the two specified accounts.
func (b *Bank) TransferFrom(asset database.AssetID, from database.AccountID, to database.AccountID, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	accounts, exists := b.balances[asset]
	if !exists {
		accounts = make(map[database.AccountID]uint64)
		b.balances[asset] = accounts
	}

	fromBalance, err := money.SafeSub(accounts[from], amount)
	if err != nil {
		return fmt.Errorf("account %q: %w", from, database.ErrInsufficientFunds)
	}

	toBalance, err := money.SafeAdd(accounts[to], amount)
	if err != nil {
		return fmt.Errorf("account %q: %w", to, err)
	}

	accounts[from] = fromBalance
	accounts[to] = toBalance

	return nil
}

// Balance returns the specified account's balance for the asset.
func (b *Bank) Balance(asset database.AssetID, account database.AccountID) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.balances[asset][account]
}

// CopyBalances makes a copy of the current balances for the asset.
func (b *Bank) CopyBalances(asset database.AssetID) map[database.AccountID]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	balances := make(map[database.AccountID]uint64)
	for accountID, amount := range b.balances[asset] {
		balances[accountID] = amount
	}
	return balances
}
