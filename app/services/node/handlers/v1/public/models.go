package public

import (
	"github.com/streampay/streampay/foundation/streaming/database"
)

type newStream struct {
	Sender         string `json:"sender" validate:"required"`
	Recipient      string `json:"recipient" validate:"required"`
	Asset          string `json:"asset" validate:"required"`
	Deposit        uint64 `json:"deposit" validate:"required"`
	StartTime      uint64 `json:"start_time" validate:"required"`
	StopTime       uint64 `json:"stop_time" validate:"required"`
	Compounding    bool   `json:"compounding"`
	SenderShare    string `json:"sender_share"`
	RecipientShare string `json:"recipient_share"`
}

type newWithdraw struct {
	Caller string `json:"caller" validate:"required"`
	Amount uint64 `json:"amount" validate:"required"`
}

type newCancel struct {
	Caller string `json:"caller" validate:"required"`
}

type stream struct {
	ID               uint64             `json:"id"`
	Sender           database.AccountID `json:"sender"`
	Recipient        database.AccountID `json:"recipient"`
	Asset            database.AssetID   `json:"asset"`
	Deposit          uint64             `json:"deposit"`
	StartTime        uint64             `json:"start_time"`
	StopTime         uint64             `json:"stop_time"`
	RatePerSecond    uint64             `json:"rate_per_second"`
	RemainingBalance uint64             `json:"remaining_balance"`
	Compounding      bool               `json:"compounding"`
}

type balance struct {
	StreamID uint64             `json:"stream_id"`
	Account  database.AccountID `json:"account"`
	Balance  uint64             `json:"balance"`
}

func toStream(dbStream database.Stream, compounding bool) stream {
	return stream{
		ID:               dbStream.ID,
		Sender:           dbStream.Sender,
		Recipient:        dbStream.Recipient,
		Asset:            dbStream.Asset,
		Deposit:          dbStream.Deposit,
		StartTime:        dbStream.StartTime,
		StopTime:         dbStream.StopTime,
		RatePerSecond:    dbStream.RatePerSecond,
		RemainingBalance: dbStream.RemainingBalance,
		Compounding:      compounding,
	}
}
