package state

import (
	"errors"
	"fmt"

	"github.com/streampay/streampay/foundation/money"
	"github.com/streampay/streampay/foundation/streaming/balance"
	"github.com/streampay/streampay/foundation/streaming/database"
	"github.com/streampay/streampay/foundation/streaming/interest"
)

// Withdraw pays the specified amount out of a stream. Only the sender or
// the recipient may call, and the amount is capped by the recipient's
// withdrawable balance regardless of caller, so a sender can never siphon
// unearned funds. A stream whose remaining balance reaches zero is deleted.
func (s *State) Withdraw(streamID uint64, amount uint64, caller database.AccountID, now uint64) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	stream, err := s.db.GetStream(streamID)
	if err != nil {
		return err
	}

	if caller != stream.Sender && caller != stream.Recipient {
		return fmt.Errorf("caller %q: %w", caller, ErrNotAuthorized)
	}

	if amount == 0 {
		return ErrInvalidAmount
	}

	available, err := balance.Withdrawable(stream, stream.Recipient, now)
	if err != nil {
		return err
	}
	if amount > available {
		return fmt.Errorf("amount %d, available %d: %w", amount, available, ErrExceedsBalance)
	}

	ext, err := s.db.GetExtension(streamID)
	switch {
	case err == nil:
		return s.withdrawCompounding(stream, ext, amount)
	case errors.Is(err, database.ErrExtensionNotFound):
		return s.withdraw(stream, amount)
	default:
		return err
	}
}

// withdraw settles a plain withdrawal: the full amount goes to the
// recipient.
func (s *State) withdraw(stream database.Stream, amount uint64) error {
	updated, err := s.db.ApplyWithdrawal(stream.ID, amount)
	if err != nil {
		return err
	}

	if err := s.transfer(stream.Asset, stream.Recipient, amount); err != nil {
		if rerr := s.db.RestoreStream(stream, database.CompoundingExtension{}, false); rerr != nil {
			s.evHandler("state: withdraw: rollback: stream[%d]: %s", stream.ID, rerr)
		}
		return fmt.Errorf("withdraw transfer: %w", err)
	}

	s.evHandler("state: withdraw: stream[%d] recipient[%s] amount[%d] remaining[%d]", stream.ID, stream.Recipient, amount, updated.RemainingBalance)

	return nil
}

// withdrawCompounding settles a withdrawal from a compounding stream. The
// yield earned on the withdrawn amount is attributed first: the sender and
// the protocol take their interest off the top and the recipient receives
// the rest, which folds the recipient's own interest plus any truncation
// dust in their favor.
func (s *State) withdrawCompounding(stream database.Stream, ext database.CompoundingExtension, amount uint64) error {
	rate, err := s.oracle.CurrentExchangeRate(stream.Asset)
	if err != nil {
		return fmt.Errorf("exchange rate: %w", err)
	}

	split, err := interest.Compute(ext, s.db.Fee(), amount, rate)
	if err != nil {
		return err
	}

	recipientAmount, err := money.SafeSub(amount, split.Sender)
	if err != nil {
		return fmt.Errorf("recipient amount: %w", err)
	}
	recipientAmount, err = money.SafeSub(recipientAmount, split.Protocol)
	if err != nil {
		return fmt.Errorf("recipient amount: %w", err)
	}

	updated, err := s.db.ApplyWithdrawal(stream.ID, amount)
	if err != nil {
		return err
	}

	if err := s.db.AddEarnings(stream.Asset, split.Protocol); err != nil {
		if rerr := s.db.RestoreStream(stream, ext, true); rerr != nil {
			s.evHandler("state: withdraw: rollback: stream[%d]: %s", stream.ID, rerr)
		}
		return err
	}

	// All bookkeeping is final; only now touch the bank.
	if err := s.payCompounding(stream, split.Sender, recipientAmount); err != nil {
		if rerr := s.db.TakeEarnings(stream.Asset, split.Protocol); rerr != nil {
			s.evHandler("state: withdraw: rollback: earnings[%d]: %s", split.Protocol, rerr)
		}
		if rerr := s.db.RestoreStream(stream, ext, true); rerr != nil {
			s.evHandler("state: withdraw: rollback: stream[%d]: %s", stream.ID, rerr)
		}
		return err
	}

	s.evHandler("state: withdraw: stream[%d] recipient[%s] amount[%d] remaining[%d]", stream.ID, stream.Recipient, amount, updated.RemainingBalance)
	s.evHandler("state: interest: stream[%d] sender[%d] recipient[%d] protocol[%d]", stream.ID, split.Sender, split.Recipient, split.Protocol)

	return nil
}

// payCompounding moves the settled amounts out of escrow. A failure on the
// second leg pulls the first leg back into escrow before returning, so an
// aborted operation never leaves a partial payout behind.
func (s *State) payCompounding(stream database.Stream, senderAmount uint64, recipientAmount uint64) error {
	if senderAmount > 0 {
		if err := s.transfer(stream.Asset, stream.Sender, senderAmount); err != nil {
			return fmt.Errorf("sender interest transfer: %w", err)
		}
	}

	if err := s.transfer(stream.Asset, stream.Recipient, recipientAmount); err != nil {
		if senderAmount > 0 {
			if cerr := s.transferFrom(stream.Asset, stream.Sender, s.ledgerID, senderAmount); cerr != nil {
				s.evHandler("state: withdraw: rollback: sender leg[%d]: %s", senderAmount, cerr)
			}
		}
		return fmt.Errorf("withdraw transfer: %w", err)
	}

	return nil
}
