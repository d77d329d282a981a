package database

import "errors"

// Set of error variables for the registry. Lifecycle code wraps these with
// call-site context; API code maps them to HTTP status codes.
var (
	ErrStreamNotFound     = errors.New("stream not found")
	ErrExtensionNotFound  = errors.New("compounding extension not found")
	ErrInvalidAccount     = errors.New("invalid account")
	ErrInvalidAsset       = errors.New("invalid asset")
	ErrSelfStream         = errors.New("stream to the same account")
	ErrZeroDeposit        = errors.New("deposit is zero")
	ErrInvalidTimes       = errors.New("invalid stream times")
	ErrDepositNotMultiple = errors.New("deposit not a multiple of the duration")
	ErrSharesNotFull      = errors.New("interest shares do not sum to 100%")
	ErrZeroExchangeRate   = errors.New("exchange rate is zero")
	ErrAssetNotAllowed    = errors.New("asset not allowed for compounding")
	ErrInvalidFee         = errors.New("fee must be between 0% and 100%")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNoSnapshot         = errors.New("no snapshot exists")
)
