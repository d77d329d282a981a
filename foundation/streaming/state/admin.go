package state

import (
	"fmt"

	"github.com/streampay/streampay/foundation/money"
	"github.com/streampay/streampay/foundation/streaming/database"
)

// SetFee updates the global protocol fee taken off all accrued interest.
// The fee applies to every settlement from this point on.
func (s *State) SetFee(fee money.Fixed) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	if err := s.db.SetFee(fee); err != nil {
		return err
	}

	s.evHandler("state: admin: fee updated[%s]", fee)

	return nil
}

// AllowAsset adds an asset to the compounding allow list.
func (s *State) AllowAsset(assetID database.AssetID) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	if err := s.db.AllowAsset(assetID); err != nil {
		return err
	}

	s.evHandler("state: admin: asset allowed[%s]", assetID)

	return nil
}

// RevokeAsset removes an asset from the compounding allow list. Streams
// already running against the asset are unaffected.
func (s *State) RevokeAsset(assetID database.AssetID) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	if err := s.db.RevokeAsset(assetID); err != nil {
		return err
	}

	s.evHandler("state: admin: asset revoked[%s]", assetID)

	return nil
}

// WithdrawEarnings pays accumulated protocol interest for an asset out to
// the specified account, bounded by the tracked earnings balance.
func (s *State) WithdrawEarnings(assetID database.AssetID, to database.AccountID, amount uint64) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	if !to.IsAccountID() || to.IsZero() {
		return fmt.Errorf("to %q: %w", to, database.ErrInvalidAccount)
	}

	if amount == 0 {
		return ErrInvalidAmount
	}

	if err := s.db.TakeEarnings(assetID, amount); err != nil {
		return err
	}

	if err := s.transfer(assetID, to, amount); err != nil {
		if rerr := s.db.AddEarnings(assetID, amount); rerr != nil {
			s.evHandler("state: admin: rollback: earnings[%d]: %s", amount, rerr)
		}
		return fmt.Errorf("earnings transfer: %w", err)
	}

	s.evHandler("state: admin: earnings withdrawn asset[%s] to[%s] amount[%d]", assetID, to, amount)

	return nil
}
