// Package interest implements the attribution of compounding yield across
// the sender, the recipient, and the protocol. It is a pure projection; the
// lifecycle operations consume its output.
package interest

import (
	"fmt"

	"github.com/streampay/streampay/foundation/money"
	"github.com/streampay/streampay/foundation/streaming/database"
)

// Split carries how much of the yield earned on a settled amount belongs
// to each party, in whole token units.
type Split struct {
	Sender    uint64
	Recipient uint64
	Protocol  uint64
}

// Compute attributes the yield earned since stream inception on the
// specified amount. The protocol fee comes off the gross first; the
// per-stream shares split what is left. The recipient share is formed by
// subtraction so a second rounding error cannot compound with the first,
// and every figure is truncated toward zero when converted back to token
// units, so the three shares can never sum to more than was earned.
func Compute(ext database.CompoundingExtension, fee money.Fixed, amount uint64, currentRate money.Fixed) (Split, error) {

	// With no rate movement there is no interest to attribute.
	if currentRate.Cmp(ext.ExchangeRateInitial) <= 0 {
		return Split{}, nil
	}

	rateDelta, err := currentRate.Sub(ext.ExchangeRateInitial)
	if err != nil {
		return Split{}, fmt.Errorf("rate delta: %w", err)
	}

	// Total yield earned by holding amount since inception, in underlying
	// asset terms.
	grossInterest, err := rateDelta.MulUnits(amount)
	if err != nil {
		return Split{}, fmt.Errorf("gross interest: %w", err)
	}

	// When the fee is 100% the whole yield is protocol earnings.
	if fee.Cmp(money.One()) == 0 {
		protocol, err := toTokens(grossInterest, currentRate)
		if err != nil {
			return Split{}, err
		}
		return Split{Protocol: protocol}, nil
	}

	protocolInterest := money.Zero()
	netInterest := grossInterest
	if !fee.IsZero() {
		if protocolInterest, err = grossInterest.Mul(fee); err != nil {
			return Split{}, fmt.Errorf("protocol interest: %w", err)
		}
		if netInterest, err = grossInterest.Sub(protocolInterest); err != nil {
			return Split{}, fmt.Errorf("net interest: %w", err)
		}
	}

	senderInterest, err := netInterest.Mul(ext.SenderShare)
	if err != nil {
		return Split{}, fmt.Errorf("sender interest: %w", err)
	}

	recipientInterest, err := netInterest.Sub(senderInterest)
	if err != nil {
		return Split{}, fmt.Errorf("recipient interest: %w", err)
	}

	var split Split
	if split.Sender, err = toTokens(senderInterest, currentRate); err != nil {
		return Split{}, err
	}
	if split.Recipient, err = toTokens(recipientInterest, currentRate); err != nil {
		return Split{}, err
	}
	if split.Protocol, err = toTokens(protocolInterest, currentRate); err != nil {
		return Split{}, err
	}

	return split, nil
}

// toTokens converts an underlying interest figure back to whole token units
// at the current exchange rate, truncating toward zero.
func toTokens(underlying money.Fixed, currentRate money.Fixed) (uint64, error) {
	tokens, err := underlying.Div(currentRate)
	if err != nil {
		return 0, fmt.Errorf("to tokens: %w", err)
	}

	return tokens.Truncate()
}
