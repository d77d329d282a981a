package state

import (
	"fmt"

	"github.com/streampay/streampay/foundation/money"
	"github.com/streampay/streampay/foundation/streaming/balance"
	"github.com/streampay/streampay/foundation/streaming/database"
	"github.com/streampay/streampay/foundation/streaming/genesis"
)

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveStream returns the stream for the specified identifier.
func (s *State) RetrieveStream(streamID uint64) (database.Stream, error) {
	return s.db.GetStream(streamID)
}

// RetrieveExtension returns the compounding extension for the specified
// stream.
func (s *State) RetrieveExtension(streamID uint64) (database.CompoundingExtension, error) {
	return s.db.GetExtension(streamID)
}

// RetrieveStreams returns a copy of every active stream.
func (s *State) RetrieveStreams() map[uint64]database.Stream {
	return s.db.CopyStreams()
}

// ElapsedSeconds returns how many seconds of the stream have run as of now.
func (s *State) ElapsedSeconds(streamID uint64, now uint64) (uint64, error) {
	stream, err := s.db.GetStream(streamID)
	if err != nil {
		return 0, err
	}

	return balance.ElapsedSeconds(stream, now), nil
}

// BalanceOf returns the specified party's withdrawable balance as of now.
func (s *State) BalanceOf(streamID uint64, party database.AccountID, now uint64) (uint64, error) {
	stream, err := s.db.GetStream(streamID)
	if err != nil {
		return 0, err
	}

	return balance.Withdrawable(stream, party, now)
}

// UnderlyingBalanceWithoutInterestOf returns the party's zero-yield balance
// valued in the underlying base asset.
func (s *State) UnderlyingBalanceWithoutInterestOf(streamID uint64, party database.AccountID, now uint64) (uint64, error) {
	stream, err := s.db.GetStream(streamID)
	if err != nil {
		return 0, err
	}

	ext, err := s.db.GetExtension(streamID)
	if err != nil {
		return 0, err
	}

	return balance.UnderlyingWithoutInterest(stream, ext, party, now)
}

// BalanceWithoutInterestOf returns the party's zero-yield balance in token
// units at the current exchange rate.
func (s *State) BalanceWithoutInterestOf(streamID uint64, party database.AccountID, now uint64) (uint64, error) {
	stream, err := s.db.GetStream(streamID)
	if err != nil {
		return 0, err
	}

	ext, err := s.db.GetExtension(streamID)
	if err != nil {
		return 0, err
	}

	rate, err := s.oracle.CurrentExchangeRate(stream.Asset)
	if err != nil {
		return 0, fmt.Errorf("exchange rate: %w", err)
	}

	return balance.WithoutInterest(stream, ext, party, rate, now)
}

// IsCompounding reports whether the stream carries a compounding extension.
func (s *State) IsCompounding(streamID uint64) bool {
	return s.db.IsCompounding(streamID)
}

// Fee returns the global protocol fee.
func (s *State) Fee() money.Fixed {
	return s.db.Fee()
}

// Earnings returns the protocol's accumulated interest for the asset.
func (s *State) Earnings(assetID database.AssetID) uint64 {
	return s.db.Earnings(assetID)
}

// IsAllowed reports whether the asset may back compounding streams.
func (s *State) IsAllowed(assetID database.AssetID) bool {
	return s.db.IsAllowed(assetID)
}
