package state

import (
	"fmt"

	"github.com/streampay/streampay/foundation/money"
	"github.com/streampay/streampay/foundation/streaming/database"
)

// CreateStream validates and records a new stream, then pulls the deposit
// from the sender into the ledger's escrow account. The whole operation
// commits or leaves no trace. The new stream identifier is returned.
func (s *State) CreateStream(sender database.AccountID, recipient database.AccountID, asset database.AssetID, deposit uint64, startTime uint64, stopTime uint64, now uint64) (uint64, error) {
	if err := s.acquire(); err != nil {
		return 0, err
	}
	defer s.release()

	stream, err := s.validateStream(sender, recipient, asset, deposit, startTime, stopTime, now)
	if err != nil {
		return 0, err
	}

	stream, err = s.db.CreateStream(stream)
	if err != nil {
		return 0, err
	}

	// Registry state is final; now pull the deposit. A failed pull unwinds
	// the record and its identifier so nothing of the operation remains.
	if err := s.transferFrom(asset, sender, s.ledgerID, deposit); err != nil {
		if rerr := s.db.DiscardStream(stream.ID); rerr != nil {
			s.evHandler("state: create: rollback: stream[%d]: %s", stream.ID, rerr)
		}
		return 0, fmt.Errorf("deposit transfer: %w", err)
	}

	s.evHandler("state: create: stream[%d] sender[%s] recipient[%s] deposit[%d] rate[%d/s]", stream.ID, sender, recipient, deposit, stream.RatePerSecond)

	return stream.ID, nil
}

// CreateCompoundingStream validates and records a new stream whose deposit
// is held in a yield-bearing asset. The current exchange rate is snapshotted
// as the baseline all later interest attribution measures against.
func (s *State) CreateCompoundingStream(sender database.AccountID, recipient database.AccountID, asset database.AssetID, deposit uint64, startTime uint64, stopTime uint64, senderShare money.Fixed, recipientShare money.Fixed, now uint64) (uint64, error) {
	if err := s.acquire(); err != nil {
		return 0, err
	}
	defer s.release()

	stream, err := s.validateStream(sender, recipient, asset, deposit, startTime, stopTime, now)
	if err != nil {
		return 0, err
	}

	if !s.db.IsAllowed(asset) {
		return 0, fmt.Errorf("asset %q: %w", asset, database.ErrAssetNotAllowed)
	}

	rate, err := s.oracle.CurrentExchangeRate(asset)
	if err != nil {
		return 0, fmt.Errorf("exchange rate: %w", err)
	}

	ext, err := database.NewCompoundingExtension(stream, rate, senderShare, recipientShare)
	if err != nil {
		return 0, err
	}

	stream, err = s.db.CreateCompoundingStream(stream, ext)
	if err != nil {
		return 0, err
	}

	if err := s.transferFrom(asset, sender, s.ledgerID, deposit); err != nil {
		if rerr := s.db.DiscardStream(stream.ID); rerr != nil {
			s.evHandler("state: create: rollback: stream[%d]: %s", stream.ID, rerr)
		}
		return 0, fmt.Errorf("deposit transfer: %w", err)
	}

	s.evHandler("state: create compounding: stream[%d] sender[%s] recipient[%s] deposit[%d] rate0[%s] shares[%s/%s]", stream.ID, sender, recipient, deposit, rate, senderShare, recipientShare)

	return stream.ID, nil
}

// validateStream runs the creation invariants shared by both variants. The
// ledger's own escrow account can never take part in a stream.
func (s *State) validateStream(sender database.AccountID, recipient database.AccountID, asset database.AssetID, deposit uint64, startTime uint64, stopTime uint64, now uint64) (database.Stream, error) {
	if sender == s.ledgerID || recipient == s.ledgerID {
		return database.Stream{}, fmt.Errorf("ledger account: %w", database.ErrInvalidAccount)
	}

	return database.NewStream(sender, recipient, asset, deposit, startTime, stopTime, now)
}
