package state

import (
	"errors"
	"fmt"

	"github.com/streampay/streampay/foundation/money"
	"github.com/streampay/streampay/foundation/streaming/balance"
	"github.com/streampay/streampay/foundation/streaming/database"
	"github.com/streampay/streampay/foundation/streaming/interest"
)

// Cancel ends a stream early, settling the entire remaining balance between
// the parties as of now and deleting the record. Only the sender or the
// recipient may call.
func (s *State) Cancel(streamID uint64, caller database.AccountID, now uint64) error {
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

	ext, err := s.db.GetExtension(streamID)
	switch {
	case err == nil:
		return s.cancelCompounding(stream, ext, now)
	case errors.Is(err, database.ErrExtensionNotFound):
		return s.cancel(stream, now)
	default:
		return err
	}
}

// cancel settles a plain stream: each party receives their withdrawable
// balance, which by construction sums to the remaining balance.
func (s *State) cancel(stream database.Stream, now uint64) error {
	senderAmount, err := balance.Withdrawable(stream, stream.Sender, now)
	if err != nil {
		return err
	}

	recipientAmount, err := balance.Withdrawable(stream, stream.Recipient, now)
	if err != nil {
		return err
	}

	if err := s.db.DeleteStream(stream.ID); err != nil {
		return err
	}

	if err := s.payCancel(stream, senderAmount, recipientAmount); err != nil {
		if rerr := s.db.RestoreStream(stream, database.CompoundingExtension{}, false); rerr != nil {
			s.evHandler("state: cancel: rollback: stream[%d]: %s", stream.ID, rerr)
		}
		return err
	}

	s.evHandler("state: cancel: stream[%d] sender[%s:%d] recipient[%s:%d]", stream.ID, stream.Sender, senderAmount, stream.Recipient, recipientAmount)

	return nil
}

// cancelCompounding settles a compounding stream. Each party starts from
// their interest-excluded balance and adds their share of the yield earned
// on the whole remaining balance. The protocol's cut is taken as the
// residual of the remaining balance rather than the engine's own figure:
// the two party shares truncate independently, and only the residual
// guarantees the three amounts sum to exactly the remaining balance. Any
// truncation dust therefore lands on the protocol.
func (s *State) cancelCompounding(stream database.Stream, ext database.CompoundingExtension, now uint64) error {
	rate, err := s.oracle.CurrentExchangeRate(stream.Asset)
	if err != nil {
		return fmt.Errorf("exchange rate: %w", err)
	}

	senderBase, err := balance.WithoutInterest(stream, ext, stream.Sender, rate, now)
	if err != nil {
		return err
	}

	recipientBase, err := balance.WithoutInterest(stream, ext, stream.Recipient, rate, now)
	if err != nil {
		return err
	}

	// Interest is attributed on the entire remaining balance, which pays
	// yield even on the principal about to be refunded to the sender.
	split, err := interest.Compute(ext, s.db.Fee(), stream.RemainingBalance, rate)
	if err != nil {
		return err
	}

	senderAmount, err := money.SafeAdd(senderBase, split.Sender)
	if err != nil {
		return fmt.Errorf("sender amount: %w", err)
	}

	recipientAmount, err := money.SafeAdd(recipientBase, split.Recipient)
	if err != nil {
		return fmt.Errorf("recipient amount: %w", err)
	}

	protocolAmount, err := money.SafeSub(stream.RemainingBalance, senderAmount)
	if err != nil {
		return fmt.Errorf("protocol residual: %w", err)
	}
	protocolAmount, err = money.SafeSub(protocolAmount, recipientAmount)
	if err != nil {
		return fmt.Errorf("protocol residual: %w", err)
	}

	if err := s.db.DeleteStream(stream.ID); err != nil {
		return err
	}

	if err := s.db.AddEarnings(stream.Asset, protocolAmount); err != nil {
		if rerr := s.db.RestoreStream(stream, ext, true); rerr != nil {
			s.evHandler("state: cancel: rollback: stream[%d]: %s", stream.ID, rerr)
		}
		return err
	}

	if err := s.payCancel(stream, senderAmount, recipientAmount); err != nil {
		if rerr := s.db.TakeEarnings(stream.Asset, protocolAmount); rerr != nil {
			s.evHandler("state: cancel: rollback: earnings[%d]: %s", protocolAmount, rerr)
		}
		if rerr := s.db.RestoreStream(stream, ext, true); rerr != nil {
			s.evHandler("state: cancel: rollback: stream[%d]: %s", stream.ID, rerr)
		}
		return err
	}

	s.evHandler("state: cancel: stream[%d] sender[%s:%d] recipient[%s:%d]", stream.ID, stream.Sender, senderAmount, stream.Recipient, recipientAmount)
	s.evHandler("state: interest: stream[%d] sender[%d] recipient[%d] protocol[%d]", stream.ID, split.Sender, split.Recipient, protocolAmount)

	return nil
}

// payCancel moves each party's settlement out of escrow. A failure on the
// second leg pulls the first leg back into escrow before returning, so an
// aborted cancellation never leaves a partial payout behind.
func (s *State) payCancel(stream database.Stream, senderAmount uint64, recipientAmount uint64) error {
	if recipientAmount > 0 {
		if err := s.transfer(stream.Asset, stream.Recipient, recipientAmount); err != nil {
			return fmt.Errorf("recipient transfer: %w", err)
		}
	}

	if senderAmount > 0 {
		if err := s.transfer(stream.Asset, stream.Sender, senderAmount); err != nil {
			if recipientAmount > 0 {
				if cerr := s.transferFrom(stream.Asset, stream.Recipient, s.ledgerID, recipientAmount); cerr != nil {
					s.evHandler("state: cancel: rollback: recipient leg[%d]: %s", recipientAmount, cerr)
				}
			}
			return fmt.Errorf("sender transfer: %w", err)
		}
	}

	return nil
}
