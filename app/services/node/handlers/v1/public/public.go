// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/streampay/streampay/business/sys/validate"
	v1 "github.com/streampay/streampay/business/web/v1"
	"github.com/streampay/streampay/foundation/events"
	"github.com/streampay/streampay/foundation/money"
	"github.com/streampay/streampay/foundation/streaming/bank"
	"github.com/streampay/streampay/foundation/streaming/database"
	"github.com/streampay/streampay/foundation/streaming/state"
	"github.com/streampay/streampay/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public streaming ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	Bank  *bank.Bank
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteJSON(event); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// QueryStreams returns the set of active streams.
func (h Handlers) QueryStreams(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	dbStreams := h.State.RetrieveStreams()

	streams := make([]stream, 0, len(dbStreams))
	for _, dbStream := range dbStreams {
		streams = append(streams, toStream(dbStream, h.State.IsCompounding(dbStream.ID)))
	}

	return web.Respond(ctx, w, streams, http.StatusOK)
}

// QueryStream returns the specified stream.
func (h Handlers) QueryStream(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	streamID, err := streamID(r)
	if err != nil {
		return err
	}

	dbStream, err := h.State.RetrieveStream(streamID)
	if err != nil {
		return v1.NewRequestError(err, errorStatus(err))
	}

	return web.Respond(ctx, w, toStream(dbStream, h.State.IsCompounding(streamID)), http.StatusOK)
}

// QueryExtension returns the compounding extension for the specified stream.
func (h Handlers) QueryExtension(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	streamID, err := streamID(r)
	if err != nil {
		return err
	}

	ext, err := h.State.RetrieveExtension(streamID)
	if err != nil {
		return v1.NewRequestError(err, errorStatus(err))
	}

	return web.Respond(ctx, w, ext, http.StatusOK)
}

// QueryElapsed returns how many seconds of the stream have run.
func (h Handlers) QueryElapsed(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	streamID, err := streamID(r)
	if err != nil {
		return err
	}

	elapsed, err := h.State.ElapsedSeconds(streamID, now())
	if err != nil {
		return v1.NewRequestError(err, errorStatus(err))
	}

	resp := struct {
		StreamID uint64 `json:"stream_id"`
		Elapsed  uint64 `json:"elapsed"`
	}{
		StreamID: streamID,
		Elapsed:  elapsed,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// QueryBalance returns the withdrawable balance for the specified party.
func (h Handlers) QueryBalance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	streamID, err := streamID(r)
	if err != nil {
		return err
	}

	accountID, err := database.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	bal, err := h.State.BalanceOf(streamID, accountID, now())
	if err != nil {
		return v1.NewRequestError(err, errorStatus(err))
	}

	return web.Respond(ctx, w, balance{StreamID: streamID, Account: accountID, Balance: bal}, http.StatusOK)
}

// QueryUnderlyingBalance returns the zero-yield balance for the specified
// party in underlying asset units.
func (h Handlers) QueryUnderlyingBalance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	streamID, err := streamID(r)
	if err != nil {
		return err
	}

	accountID, err := database.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	bal, err := h.State.UnderlyingBalanceWithoutInterestOf(streamID, accountID, now())
	if err != nil {
		return v1.NewRequestError(err, errorStatus(err))
	}

	return web.Respond(ctx, w, balance{StreamID: streamID, Account: accountID, Balance: bal}, http.StatusOK)
}

// QueryBalanceWithoutInterest returns the zero-yield balance for the
// specified party in token units at the current exchange rate.
func (h Handlers) QueryBalanceWithoutInterest(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	streamID, err := streamID(r)
	if err != nil {
		return err
	}

	accountID, err := database.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	bal, err := h.State.BalanceWithoutInterestOf(streamID, accountID, now())
	if err != nil {
		return v1.NewRequestError(err, errorStatus(err))
	}

	return web.Respond(ctx, w, balance{StreamID: streamID, Account: accountID, Balance: bal}, http.StatusOK)
}

// QueryAccountBalance returns an account's bank balance for an asset.
func (h Handlers) QueryAccountBalance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := database.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	assetID, err := database.ToAssetID(web.Param(r, "asset"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Account database.AccountID `json:"account"`
		Asset   database.AssetID   `json:"asset"`
		Balance uint64             `json:"balance"`
	}{
		Account: accountID,
		Asset:   assetID,
		Balance: h.Bank.Balance(assetID, accountID),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// CreateStream opens a new stream, plain or compounding.
func (h Handlers) CreateStream(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var ns newStream
	if err := web.Decode(r, &ns); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := validate.Check(ns); err != nil {
		return err
	}

	h.Log.Infow("create stream", "traceid", v.TraceID, "sender", ns.Sender, "recipient", ns.Recipient, "deposit", ns.Deposit, "compounding", ns.Compounding)

	var streamID uint64
	switch {
	case ns.Compounding:
		senderShare, err := money.Parse(ns.SenderShare)
		if err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
		recipientShare, err := money.Parse(ns.RecipientShare)
		if err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}

		streamID, err = h.State.CreateCompoundingStream(database.AccountID(ns.Sender), database.AccountID(ns.Recipient), database.AssetID(ns.Asset), ns.Deposit, ns.StartTime, ns.StopTime, senderShare, recipientShare, now())
		if err != nil {
			return v1.NewRequestError(err, errorStatus(err))
		}

	default:
		streamID, err = h.State.CreateStream(database.AccountID(ns.Sender), database.AccountID(ns.Recipient), database.AssetID(ns.Asset), ns.Deposit, ns.StartTime, ns.StopTime, now())
		if err != nil {
			return v1.NewRequestError(err, errorStatus(err))
		}
	}

	resp := struct {
		StreamID uint64 `json:"stream_id"`
	}{
		StreamID: streamID,
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// Withdraw pays an amount out of a stream.
func (h Handlers) Withdraw(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	streamID, err := streamID(r)
	if err != nil {
		return err
	}

	var nw newWithdraw
	if err := web.Decode(r, &nw); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := validate.Check(nw); err != nil {
		return err
	}

	h.Log.Infow("withdraw", "traceid", v.TraceID, "stream", streamID, "caller", nw.Caller, "amount", nw.Amount)

	if err := h.State.Withdraw(streamID, nw.Amount, database.AccountID(nw.Caller), now()); err != nil {
		return v1.NewRequestError(err, errorStatus(err))
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "withdrawal made",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Cancel ends a stream early, settling both parties.
func (h Handlers) Cancel(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	streamID, err := streamID(r)
	if err != nil {
		return err
	}

	var nc newCancel
	if err := web.Decode(r, &nc); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := validate.Check(nc); err != nil {
		return err
	}

	h.Log.Infow("cancel", "traceid", v.TraceID, "stream", streamID, "caller", nc.Caller)

	if err := h.State.Cancel(streamID, database.AccountID(nc.Caller), now()); err != nil {
		return v1.NewRequestError(err, errorStatus(err))
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "stream cancelled",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// streamID pulls the stream identifier from the route.
func streamID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(web.Param(r, "id"), 10, 64)
	if err != nil {
		return 0, v1.NewRequestError(errors.New("invalid stream id"), http.StatusBadRequest)
	}
	return id, nil
}

// now returns the current unix time the ledger math runs against.
func now() uint64 {
	return uint64(time.Now().Unix())
}

// errorStatus maps ledger errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, database.ErrStreamNotFound), errors.Is(err, database.ErrExtensionNotFound):
		return http.StatusNotFound
	case errors.Is(err, state.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, state.ErrLedgerBusy):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
