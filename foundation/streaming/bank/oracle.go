package bank

import (
	"fmt"
	"sync"

	"github.com/streampay/streampay/foundation/money"
	"github.com/streampay/streampay/foundation/streaming/database"
	"github.com/streampay/streampay/foundation/streaming/genesis"
)

// Oracle maintains the current exchange rate of each yield-bearing asset,
// seeded from the genesis file. It implements the state.RateOracle
// interface. Rates are settable through the admin surface; nothing here
// forces them to grow.
type Oracle struct {
	mu    sync.RWMutex
	rates map[database.AssetID]money.Fixed
}

// NewOracle constructs an oracle from the genesis exchange rates.
func NewOracle(gen genesis.Genesis) (*Oracle, error) {
	o := Oracle{
		rates: make(map[database.AssetID]money.Fixed),
	}

	for assetStr, rate := range gen.ExchangeRates {
		assetID, err := database.ToAssetID(assetStr)
		if err != nil {
			return nil, fmt.Errorf("genesis asset %q: %w", assetStr, err)
		}
		o.rates[assetID] = rate
	}

	return &o, nil
}

// CurrentExchangeRate returns the asset's exchange rate against its
// underlying base asset.
func (o *Oracle) CurrentExchangeRate(asset database.AssetID) (money.Fixed, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	rate, exists := o.rates[asset]
	if !exists {
		return money.Zero(), fmt.Errorf("no exchange rate for asset %q", asset)
	}

	return rate, nil
}

// SetRate updates the asset's exchange rate.
func (o *Oracle) SetRate(asset database.AssetID, rate money.Fixed) error {
	if rate.IsZero() {
		return database.ErrZeroExchangeRate
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.rates[asset] = rate
	return nil
}
