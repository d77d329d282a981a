package state_test

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/streampay/streampay/foundation/money"
	"github.com/streampay/streampay/foundation/streaming/bank"
	"github.com/streampay/streampay/foundation/streaming/database"
	"github.com/streampay/streampay/foundation/streaming/database/storage"
	"github.com/streampay/streampay/foundation/streaming/genesis"
	"github.com/streampay/streampay/foundation/streaming/state"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	ledgerHex    = "0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8"
	senderHex    = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	recipientHex = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
	strangerHex  = "0x8e113078ADF6888B7ba84967F299F29AeCe24c55"
	assetHex     = "0x00000000000000000000000000000000000000A1"
	compAssetHex = "0x00000000000000000000000000000000000000C1"
)

// fixture bundles everything a lifecycle test needs.
type fixture struct {
	state     *state.State
	bank      *bank.Bank
	oracle    *bank.Oracle
	ledger    database.AccountID
	sender    database.AccountID
	recipient database.AccountID
	stranger  database.AccountID
	asset     database.AssetID
	compAsset database.AssetID
}

// fixtureConfig allows a test to swap in doubles around the real
// collaborators.
type fixtureConfig struct {
	wrapBank   func(*bank.Bank) state.Transferor
	serializer database.Serializer
	evHandler  state.EventHandler
}

func newFixture(t *testing.T) *fixture {
	return buildFixture(t, fixtureConfig{})
}

func buildFixture(t *testing.T, fc fixtureConfig) *fixture {
	t.Helper()

	fee, err := money.Parse("0.1")
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the fee: %v", failed, err)
	}
	rate, err := money.Parse("1.0")
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the rate: %v", failed, err)
	}

	gen := genesis.Genesis{
		Date:              time.Now(),
		Fee:               fee,
		CompoundingAssets: []string{compAssetHex},
		ExchangeRates:     map[string]money.Fixed{compAssetHex: rate},
		Balances: map[string]map[string]uint64{
			assetHex:     {senderHex: 1_000_000},
			compAssetHex: {senderHex: 1_000_000},
		},
	}

	ledger, err := database.ToAccountID(ledgerHex)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the ledger account: %v", failed, err)
	}

	bnk, err := bank.New(gen, ledger)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the bank: %v", failed, err)
	}

	oracle, err := bank.NewOracle(gen)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the oracle: %v", failed, err)
	}

	var transferor state.Transferor = bnk
	if fc.wrapBank != nil {
		transferor = fc.wrapBank(bnk)
	}

	serializer := fc.serializer
	if serializer == nil {
		serializer = storage.NewMemory()
	}

	ev := fc.evHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	st, err := state.New(state.Config{
		Genesis:    gen,
		LedgerID:   ledger,
		Serializer: serializer,
		Bank:       transferor,
		Oracle:     oracle,
		EvHandler:  ev,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}
	t.Cleanup(func() { st.Shutdown() })

	fx := fixture{
		state:  st,
		bank:   bnk,
		oracle: oracle,
		ledger: ledger,
	}

	if fx.sender, err = database.ToAccountID(senderHex); err != nil {
		t.Fatalf("\t%s\tShould be able to parse the sender: %v", failed, err)
	}
	if fx.recipient, err = database.ToAccountID(recipientHex); err != nil {
		t.Fatalf("\t%s\tShould be able to parse the recipient: %v", failed, err)
	}
	if fx.stranger, err = database.ToAccountID(strangerHex); err != nil {
		t.Fatalf("\t%s\tShould be able to parse the stranger: %v", failed, err)
	}
	if fx.asset, err = database.ToAssetID(assetHex); err != nil {
		t.Fatalf("\t%s\tShould be able to parse the asset: %v", failed, err)
	}
	if fx.compAsset, err = database.ToAssetID(compAssetHex); err != nil {
		t.Fatalf("\t%s\tShould be able to parse the compounding asset: %v", failed, err)
	}

	return &fx
}

// =============================================================================

func Test_PlainLifecycle(t *testing.T) {
	fx := newFixture(t)
	const now = uint64(1_000_000)

	t.Log("Given a 3000 deposit streaming over 3000 seconds.")
	{
		streamID, err := fx.state.CreateStream(fx.sender, fx.recipient, fx.asset, 3000, now, now+3000, now)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the stream: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to create the stream.", success)

		if got := fx.bank.Balance(fx.asset, fx.ledger); got != 3000 {
			t.Errorf("\t%s\tShould hold the deposit in escrow, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould hold the deposit in escrow.", success)
		}
		if got := fx.bank.Balance(fx.asset, fx.sender); got != 997_000 {
			t.Errorf("\t%s\tShould debit the sender for the deposit, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould debit the sender for the deposit.", success)
		}

		bal, err := fx.state.BalanceOf(streamID, fx.recipient, now+1500)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to query the balance: %v", failed, err)
		}
		if bal != 1500 {
			t.Errorf("\t%s\tShould show the recipient 1500 halfway through, got %d.", failed, bal)
		} else {
			t.Logf("\t%s\tShould show the recipient 1500 halfway through.", success)
		}

		if err := fx.state.Withdraw(streamID, 1000, fx.recipient, now+1500); err != nil {
			t.Fatalf("\t%s\tShould be able to withdraw 1000: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to withdraw 1000.", success)

		if got := fx.bank.Balance(fx.asset, fx.recipient); got != 1000 {
			t.Errorf("\t%s\tShould pay the recipient 1000, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould pay the recipient 1000.", success)
		}

		stream, err := fx.state.RetrieveStream(streamID)
		if err != nil {
			t.Fatalf("\t%s\tShould still find the stream: %v", failed, err)
		}
		if stream.RemainingBalance != 2000 {
			t.Errorf("\t%s\tShould leave 2000 remaining, got %d.", failed, stream.RemainingBalance)
		} else {
			t.Logf("\t%s\tShould leave 2000 remaining.", success)
		}

		bal, err = fx.state.BalanceOf(streamID, fx.recipient, now+1500)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to query the balance: %v", failed, err)
		}
		if bal != 500 {
			t.Errorf("\t%s\tShould show the recipient 500 after the withdrawal, got %d.", failed, bal)
		} else {
			t.Logf("\t%s\tShould show the recipient 500 after the withdrawal.", success)
		}

		senderBal, err := fx.state.BalanceOf(streamID, fx.sender, now+1500)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to query the sender balance: %v", failed, err)
		}
		if senderBal+bal != stream.RemainingBalance {
			t.Errorf("\t%s\tShould conserve the remaining balance across both parties.", failed)
		} else {
			t.Logf("\t%s\tShould conserve the remaining balance across both parties.", success)
		}
	}
}

func Test_PlainCancel(t *testing.T) {
	fx := newFixture(t)
	const now = uint64(1_000_000)

	t.Log("Given a cancel halfway through a 3000 second stream.")
	{
		streamID, err := fx.state.CreateStream(fx.sender, fx.recipient, fx.asset, 3000, now, now+3000, now)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the stream: %v", failed, err)
		}

		if err := fx.state.Cancel(streamID, fx.stranger, now+1500); !errors.Is(err, state.ErrNotAuthorized) {
			t.Errorf("\t%s\tShould reject a cancel from a third party.", failed)
		} else {
			t.Logf("\t%s\tShould reject a cancel from a third party.", success)
		}

		if _, err := fx.state.RetrieveStream(streamID); err != nil {
			t.Errorf("\t%s\tShould leave the stream untouched after the rejection.", failed)
		} else {
			t.Logf("\t%s\tShould leave the stream untouched after the rejection.", success)
		}

		if err := fx.state.Cancel(streamID, fx.sender, now+1500); err != nil {
			t.Fatalf("\t%s\tShould be able to cancel the stream: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to cancel the stream.", success)

		if got := fx.bank.Balance(fx.asset, fx.recipient); got != 1500 {
			t.Errorf("\t%s\tShould pay the recipient 1500, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould pay the recipient 1500.", success)
		}
		if got := fx.bank.Balance(fx.asset, fx.sender); got != 998_500 {
			t.Errorf("\t%s\tShould refund the sender 1500, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould refund the sender 1500.", success)
		}
		if got := fx.bank.Balance(fx.asset, fx.ledger); got != 0 {
			t.Errorf("\t%s\tShould empty the escrow, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould empty the escrow.", success)
		}

		if _, err := fx.state.RetrieveStream(streamID); !errors.Is(err, database.ErrStreamNotFound) {
			t.Errorf("\t%s\tShould delete the stream.", failed)
		} else {
			t.Logf("\t%s\tShould delete the stream.", success)
		}
	}
}

func Test_Depletion(t *testing.T) {
	fx := newFixture(t)
	const now = uint64(1_000_000)

	t.Log("Given a full withdrawal after the stop time.")
	{
		streamID, err := fx.state.CreateStream(fx.sender, fx.recipient, fx.asset, 3000, now, now+3000, now)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the stream: %v", failed, err)
		}

		if err := fx.state.Withdraw(streamID, 3000, fx.recipient, now+9000); err != nil {
			t.Fatalf("\t%s\tShould be able to withdraw everything: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to withdraw everything.", success)

		if _, err := fx.state.RetrieveStream(streamID); !errors.Is(err, database.ErrStreamNotFound) {
			t.Errorf("\t%s\tShould delete the depleted stream.", failed)
		} else {
			t.Logf("\t%s\tShould delete the depleted stream.", success)
		}

		if err := fx.state.Withdraw(streamID, 1, fx.recipient, now+9000); !errors.Is(err, database.ErrStreamNotFound) {
			t.Errorf("\t%s\tShould reject operations on a deleted stream.", failed)
		} else {
			t.Logf("\t%s\tShould reject operations on a deleted stream.", success)
		}
	}
}

func Test_WithdrawValidation(t *testing.T) {
	fx := newFixture(t)
	const now = uint64(1_000_000)

	streamID, err := fx.state.CreateStream(fx.sender, fx.recipient, fx.asset, 3000, now, now+3000, now)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create the stream: %v", failed, err)
	}

	t.Log("Given the need to reject bad withdrawals.")
	{
		if err := fx.state.Withdraw(streamID, 1000, fx.stranger, now+1500); !errors.Is(err, state.ErrNotAuthorized) {
			t.Errorf("\t%s\tShould reject a third party caller.", failed)
		} else {
			t.Logf("\t%s\tShould reject a third party caller.", success)
		}

		if err := fx.state.Withdraw(streamID, 0, fx.recipient, now+1500); !errors.Is(err, state.ErrInvalidAmount) {
			t.Errorf("\t%s\tShould reject a zero amount.", failed)
		} else {
			t.Logf("\t%s\tShould reject a zero amount.", success)
		}

		if err := fx.state.Withdraw(streamID, 2000, fx.recipient, now+1500); !errors.Is(err, state.ErrExceedsBalance) {
			t.Errorf("\t%s\tShould reject an amount past the earned balance.", failed)
		} else {
			t.Logf("\t%s\tShould reject an amount past the earned balance.", success)
		}

		if err := fx.state.Withdraw(streamID, 2000, fx.sender, now+1500); !errors.Is(err, state.ErrExceedsBalance) {
			t.Errorf("\t%s\tShould cap the sender by the recipient's balance too.", failed)
		} else {
			t.Logf("\t%s\tShould cap the sender by the recipient's balance too.", success)
		}

		if got := fx.bank.Balance(fx.asset, fx.recipient); got != 0 {
			t.Errorf("\t%s\tShould move no funds on rejected withdrawals, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould move no funds on rejected withdrawals.", success)
		}
	}
}

func Test_CreateValidation(t *testing.T) {
	fx := newFixture(t)
	const now = uint64(1_000_000)

	thirty, _ := money.Parse("0.3")
	seventy, _ := money.Parse("0.7")

	t.Log("Given the need to reject bad creations.")
	{
		if _, err := fx.state.CreateStream(fx.sender, fx.recipient, fx.asset, 100, now, now+7, now); !errors.Is(err, database.ErrDepositNotMultiple) {
			t.Errorf("\t%s\tShould reject a deposit that is not a multiple of the duration.", failed)
		} else {
			t.Logf("\t%s\tShould reject a deposit that is not a multiple of the duration.", success)
		}

		if _, err := fx.state.CreateStream(fx.sender, fx.ledger, fx.asset, 3000, now, now+3000, now); !errors.Is(err, database.ErrInvalidAccount) {
			t.Errorf("\t%s\tShould reject the escrow account as a party.", failed)
		} else {
			t.Logf("\t%s\tShould reject the escrow account as a party.", success)
		}

		if _, err := fx.state.CreateCompoundingStream(fx.sender, fx.recipient, fx.asset, 3000, now, now+3000, thirty, seventy, now); !errors.Is(err, database.ErrAssetNotAllowed) {
			t.Errorf("\t%s\tShould reject a compounding stream over a plain asset.", failed)
		} else {
			t.Logf("\t%s\tShould reject a compounding stream over a plain asset.", success)
		}

		if _, err := fx.state.CreateStream(fx.stranger, fx.recipient, fx.asset, 3000, now, now+3000, now); !errors.Is(err, database.ErrInsufficientFunds) {
			t.Errorf("\t%s\tShould reject a sender who cannot fund the deposit.", failed)
		} else {
			t.Logf("\t%s\tShould reject a sender who cannot fund the deposit.", success)
		}

		if streams := fx.state.RetrieveStreams(); len(streams) != 0 {
			t.Errorf("\t%s\tShould record nothing for rejected creations, got %d.", failed, len(streams))
		} else {
			t.Logf("\t%s\tShould record nothing for rejected creations.", success)
		}

		streamID, err := fx.state.CreateStream(fx.sender, fx.recipient, fx.asset, 3000, now, now+3000, now)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create a valid stream: %v", failed, err)
		}
		if streamID != 1 {
			t.Errorf("\t%s\tShould hand an aborted creation's identifier to the next stream, got %d.", failed, streamID)
		} else {
			t.Logf("\t%s\tShould hand an aborted creation's identifier to the next stream.", success)
		}
	}
}

func Test_CompoundingCancel(t *testing.T) {
	fx := newFixture(t)
	const now = uint64(1_000_000)

	thirty, _ := money.Parse("0.3")
	seventy, _ := money.Parse("0.7")

	t.Log("Given a 3000 deposit, 30/70 shares, a 10% fee, and a rate move from 1.0 to 1.1.")
	{
		streamID, err := fx.state.CreateCompoundingStream(fx.sender, fx.recipient, fx.compAsset, 3000, now, now+3000, thirty, seventy, now)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the compounding stream: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to create the compounding stream.", success)

		newRate, _ := money.Parse("1.1")
		if err := fx.oracle.SetRate(fx.compAsset, newRate); err != nil {
			t.Fatalf("\t%s\tShould be able to move the exchange rate: %v", failed, err)
		}

		if err := fx.state.Cancel(streamID, fx.recipient, now+3000); err != nil {
			t.Fatalf("\t%s\tShould be able to cancel at the stop time: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to cancel at the stop time.", success)

		senderGot := fx.bank.Balance(fx.compAsset, fx.sender) - 997_000
		recipientGot := fx.bank.Balance(fx.compAsset, fx.recipient)
		protocolGot := fx.state.Earnings(fx.compAsset)

		if senderGot != 73 {
			t.Errorf("\t%s\tShould pay the sender 73 in interest, got %d.", failed, senderGot)
		} else {
			t.Logf("\t%s\tShould pay the sender 73 in interest.", success)
		}
		if recipientGot != 2898 {
			t.Errorf("\t%s\tShould pay the recipient 2898, got %d.", failed, recipientGot)
		} else {
			t.Logf("\t%s\tShould pay the recipient 2898.", success)
		}
		if protocolGot != 29 {
			t.Errorf("\t%s\tShould keep 29 as protocol earnings, got %d.", failed, protocolGot)
		} else {
			t.Logf("\t%s\tShould keep 29 as protocol earnings.", success)
		}

		if senderGot+recipientGot+protocolGot != 3000 {
			t.Errorf("\t%s\tShould settle exactly the escrowed deposit.", failed)
		} else {
			t.Logf("\t%s\tShould settle exactly the escrowed deposit.", success)
		}

		if got := fx.bank.Balance(fx.compAsset, fx.ledger); got != 29 {
			t.Errorf("\t%s\tShould leave only the protocol earnings in escrow, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould leave only the protocol earnings in escrow.", success)
		}
	}
}

func Test_CompoundingWithdraw(t *testing.T) {
	fx := newFixture(t)
	const now = uint64(1_000_000)

	thirty, _ := money.Parse("0.3")
	seventy, _ := money.Parse("0.7")

	t.Log("Given a full withdrawal from a compounding stream after a rate move.")
	{
		streamID, err := fx.state.CreateCompoundingStream(fx.sender, fx.recipient, fx.compAsset, 3000, now, now+3000, thirty, seventy, now)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the compounding stream: %v", failed, err)
		}

		newRate, _ := money.Parse("1.1")
		if err := fx.oracle.SetRate(fx.compAsset, newRate); err != nil {
			t.Fatalf("\t%s\tShould be able to move the exchange rate: %v", failed, err)
		}

		if err := fx.state.Withdraw(streamID, 3000, fx.recipient, now+3000); err != nil {
			t.Fatalf("\t%s\tShould be able to withdraw everything: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to withdraw everything.", success)

		// Gross yield on 3000 is 300 underlying: the protocol keeps 27
		// tokens, the sender 73, and the recipient the rest of the amount.
		senderGot := fx.bank.Balance(fx.compAsset, fx.sender) - 997_000
		recipientGot := fx.bank.Balance(fx.compAsset, fx.recipient)
		protocolGot := fx.state.Earnings(fx.compAsset)

		if senderGot != 73 {
			t.Errorf("\t%s\tShould pay the sender 73 in interest, got %d.", failed, senderGot)
		} else {
			t.Logf("\t%s\tShould pay the sender 73 in interest.", success)
		}
		if recipientGot != 2900 {
			t.Errorf("\t%s\tShould pay the recipient 2900, got %d.", failed, recipientGot)
		} else {
			t.Logf("\t%s\tShould pay the recipient 2900.", success)
		}
		if protocolGot != 27 {
			t.Errorf("\t%s\tShould keep 27 as protocol earnings, got %d.", failed, protocolGot)
		} else {
			t.Logf("\t%s\tShould keep 27 as protocol earnings.", success)
		}

		if senderGot+recipientGot+protocolGot != 3000 {
			t.Errorf("\t%s\tShould settle exactly the withdrawn amount.", failed)
		} else {
			t.Logf("\t%s\tShould settle exactly the withdrawn amount.", success)
		}

		if _, err := fx.state.RetrieveStream(streamID); !errors.Is(err, database.ErrStreamNotFound) {
			t.Errorf("\t%s\tShould delete the depleted stream.", failed)
		} else {
			t.Logf("\t%s\tShould delete the depleted stream.", success)
		}
	}
}

func Test_Admin(t *testing.T) {
	fx := newFixture(t)

	t.Log("Given the need to manage the protocol surface.")
	{
		newFee, _ := money.Parse("0.25")
		if err := fx.state.SetFee(newFee); err != nil {
			t.Fatalf("\t%s\tShould be able to set the fee: %v", failed, err)
		}
		if fx.state.Fee().Cmp(newFee) != 0 {
			t.Errorf("\t%s\tShould report the new fee.", failed)
		} else {
			t.Logf("\t%s\tShould report the new fee.", success)
		}

		if err := fx.state.AllowAsset(fx.asset); err != nil {
			t.Fatalf("\t%s\tShould be able to allow an asset: %v", failed, err)
		}
		if !fx.state.IsAllowed(fx.asset) {
			t.Errorf("\t%s\tShould report the asset as allowed.", failed)
		} else {
			t.Logf("\t%s\tShould report the asset as allowed.", success)
		}

		if err := fx.state.RevokeAsset(fx.asset); err != nil {
			t.Fatalf("\t%s\tShould be able to revoke the asset: %v", failed, err)
		}
		if fx.state.IsAllowed(fx.asset) {
			t.Errorf("\t%s\tShould report the asset as revoked.", failed)
		} else {
			t.Logf("\t%s\tShould report the asset as revoked.", success)
		}

		if err := fx.state.WithdrawEarnings(fx.compAsset, fx.stranger, 1); err == nil {
			t.Errorf("\t%s\tShould reject withdrawing earnings never collected.", failed)
		} else {
			t.Logf("\t%s\tShould reject withdrawing earnings never collected.", success)
		}
	}
}

func Test_EarningsWithdrawal(t *testing.T) {
	fx := newFixture(t)
	const now = uint64(1_000_000)

	thirty, _ := money.Parse("0.3")
	seventy, _ := money.Parse("0.7")

	t.Log("Given collected protocol earnings.")
	{
		streamID, err := fx.state.CreateCompoundingStream(fx.sender, fx.recipient, fx.compAsset, 3000, now, now+3000, thirty, seventy, now)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the compounding stream: %v", failed, err)
		}

		newRate, _ := money.Parse("1.1")
		if err := fx.oracle.SetRate(fx.compAsset, newRate); err != nil {
			t.Fatalf("\t%s\tShould be able to move the exchange rate: %v", failed, err)
		}

		if err := fx.state.Cancel(streamID, fx.sender, now+3000); err != nil {
			t.Fatalf("\t%s\tShould be able to cancel the stream: %v", failed, err)
		}

		if err := fx.state.WithdrawEarnings(fx.compAsset, fx.stranger, 29); err != nil {
			t.Fatalf("\t%s\tShould be able to withdraw the earnings: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to withdraw the earnings.", success)

		if got := fx.bank.Balance(fx.compAsset, fx.stranger); got != 29 {
			t.Errorf("\t%s\tShould pay the treasury account 29, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould pay the treasury account 29.", success)
		}

		if got := fx.state.Earnings(fx.compAsset); got != 0 {
			t.Errorf("\t%s\tShould hold zero earnings after the withdrawal, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould hold zero earnings after the withdrawal.", success)
		}

		if got := fx.bank.Balance(fx.compAsset, fx.ledger); got != 0 {
			t.Errorf("\t%s\tShould empty the escrow completely, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould empty the escrow completely.", success)
		}
	}
}

// =============================================================================

// failingBank wraps the real bank and rejects one specific transfer call so
// a test can force an abort on any leg of a payout.
type failingBank struct {
	bank   *bank.Bank
	failOn int
	calls  int
}

func (b *failingBank) Transfer(asset database.AssetID, to database.AccountID, amount uint64) error {
	b.calls++
	if b.calls == b.failOn {
		return errors.New("transfer rejected")
	}
	return b.bank.Transfer(asset, to, amount)
}

func (b *failingBank) TransferFrom(asset database.AssetID, from database.AccountID, to database.AccountID, amount uint64) error {
	b.calls++
	if b.calls == b.failOn {
		return errors.New("transfer rejected")
	}
	return b.bank.TransferFrom(asset, from, to, amount)
}

// reentrantBank calls back into the ledger from inside a transfer, the way
// a hostile token contract would.
type reentrantBank struct {
	bank      *bank.Bank
	st        *state.State
	caller    database.AccountID
	streamID  uint64
	now       uint64
	triggered bool
	inner     error
}

func (b *reentrantBank) Transfer(asset database.AssetID, to database.AccountID, amount uint64) error {
	if !b.triggered {
		b.triggered = true
		b.inner = b.st.Cancel(b.streamID, b.caller, b.now)
	}
	return b.bank.Transfer(asset, to, amount)
}

func (b *reentrantBank) TransferFrom(asset database.AssetID, from database.AccountID, to database.AccountID, amount uint64) error {
	return b.bank.TransferFrom(asset, from, to, amount)
}

// failingSerializer wraps the memory serializer and rejects one specific
// write so a test can force a persist failure during a rollback.
type failingSerializer struct {
	*storage.Memory
	failOn int
	writes int
}

func (s *failingSerializer) Write(snapshot database.Snapshot) error {
	s.writes++
	if s.writes == s.failOn {
		return errors.New("write rejected")
	}
	return s.Memory.Write(snapshot)
}

// =============================================================================

func Test_WithdrawTransferFailure(t *testing.T) {
	fx := buildFixture(t, fixtureConfig{
		wrapBank: func(b *bank.Bank) state.Transferor {
			return &failingBank{bank: b, failOn: 2}
		},
	})
	const now = uint64(1_000_000)

	t.Log("Given a payout transfer that the bank rejects.")
	{
		streamID, err := fx.state.CreateStream(fx.sender, fx.recipient, fx.asset, 3000, now, now+3000, now)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the stream: %v", failed, err)
		}

		if err := fx.state.Withdraw(streamID, 1000, fx.recipient, now+1500); err == nil {
			t.Fatalf("\t%s\tShould fail the withdrawal.", failed)
		}
		t.Logf("\t%s\tShould fail the withdrawal.", success)

		stream, err := fx.state.RetrieveStream(streamID)
		if err != nil {
			t.Fatalf("\t%s\tShould still find the stream: %v", failed, err)
		}
		if stream.RemainingBalance != 3000 {
			t.Errorf("\t%s\tShould restore the full remaining balance, got %d.", failed, stream.RemainingBalance)
		} else {
			t.Logf("\t%s\tShould restore the full remaining balance.", success)
		}

		if got := fx.bank.Balance(fx.asset, fx.recipient); got != 0 {
			t.Errorf("\t%s\tShould move nothing to the recipient, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould move nothing to the recipient.", success)
		}
		if got := fx.bank.Balance(fx.asset, fx.ledger); got != 3000 {
			t.Errorf("\t%s\tShould keep the full deposit in escrow, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould keep the full deposit in escrow.", success)
		}
	}
}

func Test_CompoundingWithdrawTransferFailure(t *testing.T) {
	fx := buildFixture(t, fixtureConfig{
		wrapBank: func(b *bank.Bank) state.Transferor {
			return &failingBank{bank: b, failOn: 3}
		},
	})
	const now = uint64(1_000_000)

	thirty, _ := money.Parse("0.3")
	seventy, _ := money.Parse("0.7")

	t.Log("Given a recipient payout that fails after the sender interest leg.")
	{
		streamID, err := fx.state.CreateCompoundingStream(fx.sender, fx.recipient, fx.compAsset, 3000, now, now+3000, thirty, seventy, now)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the compounding stream: %v", failed, err)
		}

		newRate, _ := money.Parse("1.1")
		if err := fx.oracle.SetRate(fx.compAsset, newRate); err != nil {
			t.Fatalf("\t%s\tShould be able to move the exchange rate: %v", failed, err)
		}

		if err := fx.state.Withdraw(streamID, 3000, fx.recipient, now+3000); err == nil {
			t.Fatalf("\t%s\tShould fail the withdrawal.", failed)
		}
		t.Logf("\t%s\tShould fail the withdrawal.", success)

		stream, err := fx.state.RetrieveStream(streamID)
		if err != nil {
			t.Fatalf("\t%s\tShould still find the stream: %v", failed, err)
		}
		if stream.RemainingBalance != 3000 {
			t.Errorf("\t%s\tShould restore the full remaining balance, got %d.", failed, stream.RemainingBalance)
		} else {
			t.Logf("\t%s\tShould restore the full remaining balance.", success)
		}
		if !fx.state.IsCompounding(streamID) {
			t.Errorf("\t%s\tShould restore the compounding extension.", failed)
		} else {
			t.Logf("\t%s\tShould restore the compounding extension.", success)
		}

		if got := fx.state.Earnings(fx.compAsset); got != 0 {
			t.Errorf("\t%s\tShould keep no protocol earnings, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould keep no protocol earnings.", success)
		}
		if got := fx.bank.Balance(fx.compAsset, fx.sender); got != 997_000 {
			t.Errorf("\t%s\tShould pull the sender interest leg back, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould pull the sender interest leg back.", success)
		}
		if got := fx.bank.Balance(fx.compAsset, fx.recipient); got != 0 {
			t.Errorf("\t%s\tShould move nothing to the recipient, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould move nothing to the recipient.", success)
		}
		if got := fx.bank.Balance(fx.compAsset, fx.ledger); got != 3000 {
			t.Errorf("\t%s\tShould keep escrow covering the remaining balance, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould keep escrow covering the remaining balance.", success)
		}
	}
}

func Test_CompoundingCancelTransferFailure(t *testing.T) {
	fx := buildFixture(t, fixtureConfig{
		wrapBank: func(b *bank.Bank) state.Transferor {
			return &failingBank{bank: b, failOn: 3}
		},
	})
	const now = uint64(1_000_000)

	thirty, _ := money.Parse("0.3")
	seventy, _ := money.Parse("0.7")

	t.Log("Given a sender settlement that fails after the recipient leg.")
	{
		streamID, err := fx.state.CreateCompoundingStream(fx.sender, fx.recipient, fx.compAsset, 3000, now, now+3000, thirty, seventy, now)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the compounding stream: %v", failed, err)
		}

		newRate, _ := money.Parse("1.1")
		if err := fx.oracle.SetRate(fx.compAsset, newRate); err != nil {
			t.Fatalf("\t%s\tShould be able to move the exchange rate: %v", failed, err)
		}

		if err := fx.state.Cancel(streamID, fx.sender, now+3000); err == nil {
			t.Fatalf("\t%s\tShould fail the cancellation.", failed)
		}
		t.Logf("\t%s\tShould fail the cancellation.", success)

		stream, err := fx.state.RetrieveStream(streamID)
		if err != nil {
			t.Fatalf("\t%s\tShould still find the stream: %v", failed, err)
		}
		if stream.RemainingBalance != 3000 {
			t.Errorf("\t%s\tShould restore the full remaining balance, got %d.", failed, stream.RemainingBalance)
		} else {
			t.Logf("\t%s\tShould restore the full remaining balance.", success)
		}

		if got := fx.state.Earnings(fx.compAsset); got != 0 {
			t.Errorf("\t%s\tShould keep no protocol earnings, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould keep no protocol earnings.", success)
		}
		if got := fx.bank.Balance(fx.compAsset, fx.recipient); got != 0 {
			t.Errorf("\t%s\tShould pull the recipient leg back, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould pull the recipient leg back.", success)
		}
		if got := fx.bank.Balance(fx.compAsset, fx.sender); got != 997_000 {
			t.Errorf("\t%s\tShould move nothing to the sender, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould move nothing to the sender.", success)
		}
		if got := fx.bank.Balance(fx.compAsset, fx.ledger); got != 3000 {
			t.Errorf("\t%s\tShould keep escrow covering the remaining balance, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould keep escrow covering the remaining balance.", success)
		}
	}
}

func Test_RollbackPersistFailure(t *testing.T) {
	var events []string
	fx := buildFixture(t, fixtureConfig{
		wrapBank: func(b *bank.Bank) state.Transferor {
			return &failingBank{bank: b, failOn: 2}
		},
		serializer: &failingSerializer{Memory: storage.NewMemory(), failOn: 3},
		evHandler: func(v string, args ...any) {
			events = append(events, fmt.Sprintf(v, args...))
		},
	})
	const now = uint64(1_000_000)

	t.Log("Given a snapshot write that fails while a rollback runs.")
	{
		streamID, err := fx.state.CreateStream(fx.sender, fx.recipient, fx.asset, 3000, now, now+3000, now)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the stream: %v", failed, err)
		}

		if err := fx.state.Withdraw(streamID, 1000, fx.recipient, now+1500); err == nil {
			t.Fatalf("\t%s\tShould fail the withdrawal.", failed)
		}
		t.Logf("\t%s\tShould fail the withdrawal.", success)

		stream, err := fx.state.RetrieveStream(streamID)
		if err != nil {
			t.Fatalf("\t%s\tShould still find the stream in memory: %v", failed, err)
		}
		if stream.RemainingBalance != 3000 {
			t.Errorf("\t%s\tShould restore the full remaining balance, got %d.", failed, stream.RemainingBalance)
		} else {
			t.Logf("\t%s\tShould restore the full remaining balance.", success)
		}

		var logged bool
		for _, event := range events {
			if strings.Contains(event, "rollback") {
				logged = true
				break
			}
		}
		if !logged {
			t.Errorf("\t%s\tShould report the failed rollback write.", failed)
		} else {
			t.Logf("\t%s\tShould report the failed rollback write.", success)
		}
	}
}

func Test_ConcurrentWithdrawals(t *testing.T) {
	fx := newFixture(t)
	const now = uint64(1_000_000)

	t.Log("Given two simultaneous withdrawals against the same stream.")
	{
		streamID, err := fx.state.CreateStream(fx.sender, fx.recipient, fx.asset, 3000, now, now+3000, now)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the stream: %v", failed, err)
		}

		results := make(chan error, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- fx.state.Withdraw(streamID, 500, fx.recipient, now+1500)
			}()
		}
		wg.Wait()
		close(results)

		for err := range results {
			if err != nil {
				t.Errorf("\t%s\tShould complete both withdrawals: %v", failed, err)
			} else {
				t.Logf("\t%s\tShould complete both withdrawals.", success)
			}
		}

		stream, err := fx.state.RetrieveStream(streamID)
		if err != nil {
			t.Fatalf("\t%s\tShould still find the stream: %v", failed, err)
		}
		if stream.RemainingBalance != 2000 {
			t.Errorf("\t%s\tShould leave 2000 remaining, got %d.", failed, stream.RemainingBalance)
		} else {
			t.Logf("\t%s\tShould leave 2000 remaining.", success)
		}
		if got := fx.bank.Balance(fx.asset, fx.recipient); got != 1000 {
			t.Errorf("\t%s\tShould pay the recipient 1000 in total, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould pay the recipient 1000 in total.", success)
		}
	}
}

func Test_ReentrantOperation(t *testing.T) {
	var rb *reentrantBank
	fx := buildFixture(t, fixtureConfig{
		wrapBank: func(b *bank.Bank) state.Transferor {
			rb = &reentrantBank{bank: b}
			return rb
		},
	})
	const now = uint64(1_000_000)

	t.Log("Given a transferor that calls back into the ledger mid-transfer.")
	{
		streamID, err := fx.state.CreateStream(fx.sender, fx.recipient, fx.asset, 3000, now, now+3000, now)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the stream: %v", failed, err)
		}

		rb.st = fx.state
		rb.caller = fx.recipient
		rb.streamID = streamID
		rb.now = now + 1500

		if err := fx.state.Withdraw(streamID, 1000, fx.recipient, now+1500); err != nil {
			t.Fatalf("\t%s\tShould complete the outer withdrawal: %v", failed, err)
		}
		t.Logf("\t%s\tShould complete the outer withdrawal.", success)

		if !errors.Is(rb.inner, state.ErrLedgerBusy) {
			t.Errorf("\t%s\tShould reject the re-entrant cancel as busy, got %v.", failed, rb.inner)
		} else {
			t.Logf("\t%s\tShould reject the re-entrant cancel as busy.", success)
		}

		stream, err := fx.state.RetrieveStream(streamID)
		if err != nil {
			t.Fatalf("\t%s\tShould still find the stream: %v", failed, err)
		}
		if stream.RemainingBalance != 2000 {
			t.Errorf("\t%s\tShould apply only the outer withdrawal, got %d remaining.", failed, stream.RemainingBalance)
		} else {
			t.Logf("\t%s\tShould apply only the outer withdrawal.", success)
		}
	}
}
