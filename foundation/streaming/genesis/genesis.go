// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"os"
	"time"

	"github.com/streampay/streampay/foundation/money"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date              time.Time                    `json:"date"`
	Fee               money.Fixed                  `json:"fee"`                // Fraction of accrued interest retained by the protocol.
	CompoundingAssets []string                     `json:"compounding_assets"` // Assets allowed to back compounding streams.
	ExchangeRates     map[string]money.Fixed       `json:"exchange_rates"`     // Starting exchange rate per yield-bearing asset.
	Balances          map[string]map[string]uint64 `json:"balances"`           // Starting bank balances, asset then account.
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}
