// Package balance implements the pure balance calculations for streams.
// Nothing here mutates state; every figure is re-derived from elapsed time
// against a caller supplied current timestamp.
package balance

import (
	"fmt"

	"github.com/streampay/streampay/foundation/money"
	"github.com/streampay/streampay/foundation/streaming/database"
)

// ElapsedSeconds returns how many seconds of the stream have run as of now.
// It is zero before the start time and saturates at the full duration. All
// money math derives from this single time source.
func ElapsedSeconds(stream database.Stream, now uint64) uint64 {
	switch {
	case now <= stream.StartTime:
		return 0
	case now < stream.StopTime:
		return now - stream.StartTime
	default:
		return stream.StopTime - stream.StartTime
	}
}

// Withdrawable returns the amount the specified party could withdraw as of
// now. Unknown parties get zero; callers must reject them before using the
// result for transfers.
func Withdrawable(stream database.Stream, party database.AccountID, now uint64) (uint64, error) {
	recipientNet, err := recipientBalance(stream, now)
	if err != nil {
		return 0, err
	}

	switch party {
	case stream.Recipient:
		return recipientNet, nil

	case stream.Sender:
		// Whatever has not yet become withdrawable belongs to the sender.
		return money.SafeSub(stream.RemainingBalance, recipientNet)

	default:
		return 0, nil
	}
}

// recipientBalance computes what the recipient has earned but not yet
// withdrawn. An underflow here means the bookkeeping invariant broke, not a
// bad input.
func recipientBalance(stream database.Stream, now uint64) (uint64, error) {
	gross, err := money.SafeMul(ElapsedSeconds(stream, now), stream.RatePerSecond)
	if err != nil {
		return 0, fmt.Errorf("recipient gross: %w", err)
	}

	withdrawn, err := money.SafeSub(stream.Deposit, stream.RemainingBalance)
	if err != nil {
		return 0, fmt.Errorf("already withdrawn: %w", err)
	}

	net, err := money.SafeSub(gross, withdrawn)
	if err != nil {
		return 0, fmt.Errorf("recipient net: %w", err)
	}

	return net, nil
}

// =============================================================================

// UnderlyingWithoutInterest returns the party's balance valued in the
// underlying base asset at the creation exchange rate, truncated to whole
// units. This is what the balance would be with zero yield and serves as
// the baseline for interest attribution.
func UnderlyingWithoutInterest(stream database.Stream, ext database.CompoundingExtension, party database.AccountID, now uint64) (uint64, error) {
	f, err := underlyingWithoutInterest(stream, ext, party, now)
	if err != nil {
		return 0, err
	}

	return f.Truncate()
}

// WithoutInterest returns the party's interest excluded balance converted
// back into token units at the current exchange rate. Since the rate only
// grows, this figure never exceeds the party's time based balance; the gap
// is the interest the attribution engine distributes.
func WithoutInterest(stream database.Stream, ext database.CompoundingExtension, party database.AccountID, currentRate money.Fixed, now uint64) (uint64, error) {
	f, err := underlyingWithoutInterest(stream, ext, party, now)
	if err != nil {
		return 0, err
	}

	tokens, err := f.Div(currentRate)
	if err != nil {
		return 0, err
	}

	return tokens.Truncate()
}

// underlyingWithoutInterest mirrors the withdrawable calculation in
// underlying asset terms using the rate frozen at creation.
func underlyingWithoutInterest(stream database.Stream, ext database.CompoundingExtension, party database.AccountID, now uint64) (money.Fixed, error) {
	gross, err := ext.UnderlyingRatePerSecond.MulUnits(ElapsedSeconds(stream, now))
	if err != nil {
		return money.Zero(), fmt.Errorf("underlying gross: %w", err)
	}

	withdrawn, err := money.SafeSub(stream.Deposit, stream.RemainingBalance)
	if err != nil {
		return money.Zero(), fmt.Errorf("already withdrawn: %w", err)
	}

	withdrawnUnderlying, err := ext.ExchangeRateInitial.MulUnits(withdrawn)
	if err != nil {
		return money.Zero(), fmt.Errorf("withdrawn underlying: %w", err)
	}

	net, err := gross.Sub(withdrawnUnderlying)
	if err != nil {
		return money.Zero(), fmt.Errorf("recipient net underlying: %w", err)
	}

	switch party {
	case stream.Recipient:
		return net, nil

	case stream.Sender:
		remaining, err := ext.ExchangeRateInitial.MulUnits(stream.RemainingBalance)
		if err != nil {
			return money.Zero(), fmt.Errorf("remaining underlying: %w", err)
		}
		return remaining.Sub(net)

	default:
		return money.Zero(), nil
	}
}
