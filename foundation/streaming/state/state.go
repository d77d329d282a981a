// Package state is the core API for the streaming ledger and implements
// all the business rules and processing.
package state

import (
	"errors"
	"sync"

	"github.com/streampay/streampay/foundation/money"
	"github.com/streampay/streampay/foundation/streaming/database"
	"github.com/streampay/streampay/foundation/streaming/genesis"
)

// Set of error variables for lifecycle operations.
var (
	ErrNotAuthorized  = errors.New("caller not authorized")
	ErrInvalidAmount  = errors.New("amount is zero")
	ErrExceedsBalance = errors.New("amount exceeds withdrawable balance")
	ErrLedgerBusy     = errors.New("operation already in progress")
)

// =============================================================================

// EventHandler defines a function that is called when events occur in the
// processing of ledger operations.
type EventHandler func(v string, args ...any)

// Transferor interface represents the behavior required to be implemented
// by the external token bank that moves value between accounts. A returned
// error aborts the whole ledger operation.
type Transferor interface {
	Transfer(asset database.AssetID, to database.AccountID, amount uint64) error
	TransferFrom(asset database.AssetID, from database.AccountID, to database.AccountID, amount uint64) error
}

// RateOracle interface represents the behavior required to be implemented
// by the external price oracle for yield-bearing assets. Rates from a well
// behaved asset only grow, but that is an external assumption this ledger
// never relies on.
type RateOracle interface {
	CurrentExchangeRate(asset database.AssetID) (money.Fixed, error)
}

// =============================================================================

// Config represents the configuration required to start the ledger.
type Config struct {
	Genesis    genesis.Genesis
	LedgerID   database.AccountID
	Serializer database.Serializer
	Bank       Transferor
	Oracle     RateOracle
	EvHandler  EventHandler
}

// State manages the streaming ledger.
type State struct {
	ledgerID  database.AccountID
	evHandler EventHandler

	genesis genesis.Genesis
	db      *database.Database
	bank    Transferor
	oracle  RateOracle

	opMu sync.Mutex // serializes top-level operations
	mu   sync.Mutex
	busy bool // set while an external transfer is in flight
}

// New constructs a new ledger state for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	db, err := database.New(cfg.Genesis, cfg.Serializer)
	if err != nil {
		return nil, err
	}

	state := State{
		ledgerID:  cfg.LedgerID,
		evHandler: ev,

		genesis: cfg.Genesis,
		db:      db,
		bank:    cfg.Bank,
		oracle:  cfg.Oracle,
	}

	return &state, nil
}

// Shutdown cleanly brings the ledger down.
func (s *State) Shutdown() error {
	s.db.Close()
	return nil
}

// =============================================================================

// acquire serializes top-level operations: a call arriving while another
// operation runs waits its turn. The exception is a call made while an
// external transfer is in flight. That is the transferor calling back into
// the ledger, and blocking it on the operation lock would deadlock, so it
// fails with ErrLedgerBusy instead.
func (s *State) acquire() error {
	s.mu.Lock()
	busy := s.busy
	s.mu.Unlock()

	if busy {
		return ErrLedgerBusy
	}

	s.opMu.Lock()
	return nil
}

// release hands the operation lock back. It must run on every exit path
// after a successful acquire.
func (s *State) release() {
	s.opMu.Unlock()
}

// transfer moves value out of escrow through the external bank. The busy
// flag is held across the call so a re-entrant operation started by the
// transferor fails instead of deadlocking.
func (s *State) transfer(asset database.AssetID, to database.AccountID, amount uint64) error {
	s.setBusy(true)
	defer s.setBusy(false)

	return s.bank.Transfer(asset, to, amount)
}

// transferFrom pulls value between external accounts with the same
// re-entrancy protection as transfer.
func (s *State) transferFrom(asset database.AssetID, from database.AccountID, to database.AccountID, amount uint64) error {
	s.setBusy(true)
	defer s.setBusy(false)

	return s.bank.TransferFrom(asset, from, to, amount)
}

func (s *State) setBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.busy = busy
}
