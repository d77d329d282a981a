// Package private maintains the group of handlers for administrative access.
package private

import (
	"context"
	"net/http"

	"github.com/streampay/streampay/business/sys/validate"
	v1 "github.com/streampay/streampay/business/web/v1"
	"github.com/streampay/streampay/foundation/money"
	"github.com/streampay/streampay/foundation/streaming/bank"
	"github.com/streampay/streampay/foundation/streaming/database"
	"github.com/streampay/streampay/foundation/streaming/state"
	"github.com/streampay/streampay/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of administrative endpoints. Authentication is
// handled by keeping the private host off the public network.
type Handlers struct {
	Log    *zap.SugaredLogger
	State  *state.State
	Oracle *bank.Oracle
}

// QueryEarnings returns the protocol's accumulated interest for an asset.
func (h Handlers) QueryEarnings(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	assetID, err := database.ToAssetID(web.Param(r, "asset"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Asset    database.AssetID `json:"asset"`
		Earnings uint64           `json:"earnings"`
	}{
		Asset:    assetID,
		Earnings: h.State.Earnings(assetID),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SetFee updates the global protocol fee.
func (h Handlers) SetFee(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var nf struct {
		Fee string `json:"fee" validate:"required"`
	}
	if err := web.Decode(r, &nf); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := validate.Check(nf); err != nil {
		return err
	}

	fee, err := money.Parse(nf.Fee)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := h.State.SetFee(fee); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "fee updated",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// AllowAsset adds an asset to the compounding allow list.
func (h Handlers) AllowAsset(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	assetID, err := database.ToAssetID(web.Param(r, "asset"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := h.State.AllowAsset(assetID); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "asset allowed",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// RevokeAsset removes an asset from the compounding allow list.
func (h Handlers) RevokeAsset(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	assetID, err := database.ToAssetID(web.Param(r, "asset"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := h.State.RevokeAsset(assetID); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "asset revoked",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// WithdrawEarnings pays accumulated protocol interest out to an account.
func (h Handlers) WithdrawEarnings(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var nw struct {
		Asset  string `json:"asset" validate:"required"`
		To     string `json:"to" validate:"required"`
		Amount uint64 `json:"amount" validate:"required"`
	}
	if err := web.Decode(r, &nw); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := validate.Check(nw); err != nil {
		return err
	}

	if err := h.State.WithdrawEarnings(database.AssetID(nw.Asset), database.AccountID(nw.To), nw.Amount); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "earnings withdrawn",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SetRate updates the oracle's exchange rate for an asset. This stands in
// for the external price oracle in a running simulation.
func (h Handlers) SetRate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	assetID, err := database.ToAssetID(web.Param(r, "asset"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	var nr struct {
		Rate string `json:"rate" validate:"required"`
	}
	if err := web.Decode(r, &nr); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := validate.Check(nr); err != nil {
		return err
	}

	rate, err := money.Parse(nr.Rate)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := h.Oracle.SetRate(assetID, rate); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "rate updated",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
