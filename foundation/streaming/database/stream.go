package database

import (
	"fmt"

	"github.com/streampay/streampay/foundation/money"
)

// Stream represents a single linear, time-bounded payment commitment from
// a sender to a recipient. The rate per second is fixed at creation and the
// remaining balance only ever decreases.
type Stream struct {
	ID               uint64    `json:"id"`
	Sender           AccountID `json:"sender"`
	Recipient        AccountID `json:"recipient"`
	Asset            AssetID   `json:"asset"`
	Deposit          uint64    `json:"deposit"`
	StartTime        uint64    `json:"start_time"`
	StopTime         uint64    `json:"stop_time"`
	RatePerSecond    uint64    `json:"rate_per_second"`
	RemainingBalance uint64    `json:"remaining_balance"`
}

// NewStream constructs a stream record, validating every creation invariant.
// The caller supplies the current time so validation and balance math share
// a single time source.
func NewStream(sender AccountID, recipient AccountID, asset AssetID, deposit uint64, startTime uint64, stopTime uint64, now uint64) (Stream, error) {
	if !sender.IsAccountID() || sender.IsZero() {
		return Stream{}, fmt.Errorf("sender %q: %w", sender, ErrInvalidAccount)
	}

	if !recipient.IsAccountID() || recipient.IsZero() {
		return Stream{}, fmt.Errorf("recipient %q: %w", recipient, ErrInvalidAccount)
	}

	if recipient == sender {
		return Stream{}, ErrSelfStream
	}

	if !asset.IsAssetID() {
		return Stream{}, fmt.Errorf("asset %q: %w", asset, ErrInvalidAsset)
	}

	if deposit == 0 {
		return Stream{}, ErrZeroDeposit
	}

	if startTime < now {
		return Stream{}, fmt.Errorf("start time %d before current time %d: %w", startTime, now, ErrInvalidTimes)
	}

	if stopTime <= startTime {
		return Stream{}, fmt.Errorf("stop time %d not after start time %d: %w", stopTime, startTime, ErrInvalidTimes)
	}

	// The deposit must divide evenly across the duration so the full amount
	// streams with no rounding loss at creation.
	duration := stopTime - startTime
	if deposit%duration != 0 {
		return Stream{}, fmt.Errorf("deposit %d not a multiple of duration %d: %w", deposit, duration, ErrDepositNotMultiple)
	}

	s := Stream{
		Sender:           sender,
		Recipient:        recipient,
		Asset:            asset,
		Deposit:          deposit,
		StartTime:        startTime,
		StopTime:         stopTime,
		RatePerSecond:    deposit / duration,
		RemainingBalance: deposit,
	}

	return s, nil
}

// =============================================================================

// CompoundingExtension carries the extra parameters for a stream whose
// deposit is held in a yield-bearing wrapped asset. It is created and
// destroyed atomically with its stream.
type CompoundingExtension struct {
	StreamID                uint64      `json:"stream_id"`
	ExchangeRateInitial     money.Fixed `json:"exchange_rate_initial"`
	UnderlyingRatePerSecond money.Fixed `json:"underlying_rate_per_second"`
	SenderShare             money.Fixed `json:"sender_share"`
	RecipientShare          money.Fixed `json:"recipient_share"`
}

// NewCompoundingExtension constructs the compounding parameters for a stream.
// The shares are fractions of the interest left after the protocol fee and
// must sum to exactly 100%.
func NewCompoundingExtension(stream Stream, exchangeRate money.Fixed, senderShare money.Fixed, recipientShare money.Fixed) (CompoundingExtension, error) {
	sum, err := senderShare.Add(recipientShare)
	if err != nil {
		return CompoundingExtension{}, err
	}
	if sum.Cmp(money.One()) != 0 {
		return CompoundingExtension{}, ErrSharesNotFull
	}

	if exchangeRate.IsZero() {
		return CompoundingExtension{}, ErrZeroExchangeRate
	}

	// The underlying rate is fixed once here for the stream's life. It values
	// each streamed second in underlying asset terms at the creation rate.
	underlyingRate, err := exchangeRate.MulUnits(stream.RatePerSecond)
	if err != nil {
		return CompoundingExtension{}, err
	}

	ext := CompoundingExtension{
		StreamID:                stream.ID,
		ExchangeRateInitial:     exchangeRate,
		UnderlyingRatePerSecond: underlyingRate,
		SenderShare:             senderShare,
		RecipientShare:          recipientShare,
	}

	return ext, nil
}
