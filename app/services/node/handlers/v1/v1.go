// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/streampay/streampay/app/services/node/handlers/v1/private"
	"github.com/streampay/streampay/app/services/node/handlers/v1/public"
	"github.com/streampay/streampay/foundation/events"
	"github.com/streampay/streampay/foundation/streaming/bank"
	"github.com/streampay/streampay/foundation/streaming/state"
	"github.com/streampay/streampay/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log    *zap.SugaredLogger
	State  *state.State
	Bank   *bank.Bank
	Oracle *bank.Oracle
	Evts   *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Bank:  cfg.Bank,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/streams", pbl.QueryStreams)
	app.Handle(http.MethodGet, version, "/streams/:id", pbl.QueryStream)
	app.Handle(http.MethodGet, version, "/streams/:id/extension", pbl.QueryExtension)
	app.Handle(http.MethodGet, version, "/streams/:id/elapsed", pbl.QueryElapsed)
	app.Handle(http.MethodGet, version, "/streams/:id/balance/:account", pbl.QueryBalance)
	app.Handle(http.MethodGet, version, "/streams/:id/underlying/:account", pbl.QueryUnderlyingBalance)
	app.Handle(http.MethodGet, version, "/streams/:id/base/:account", pbl.QueryBalanceWithoutInterest)
	app.Handle(http.MethodGet, version, "/accounts/:account/balance/:asset", pbl.QueryAccountBalance)
	app.Handle(http.MethodPost, version, "/streams", pbl.CreateStream)
	app.Handle(http.MethodPost, version, "/streams/:id/withdraw", pbl.Withdraw)
	app.Handle(http.MethodPost, version, "/streams/:id/cancel", pbl.Cancel)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:    cfg.Log,
		State:  cfg.State,
		Oracle: cfg.Oracle,
	}

	app.Handle(http.MethodGet, version, "/admin/earnings/:asset", prv.QueryEarnings)
	app.Handle(http.MethodPost, version, "/admin/fee", prv.SetFee)
	app.Handle(http.MethodPost, version, "/admin/assets/:asset", prv.AllowAsset)
	app.Handle(http.MethodDelete, version, "/admin/assets/:asset", prv.RevokeAsset)
	app.Handle(http.MethodPost, version, "/admin/earnings/withdraw", prv.WithdrawEarnings)
	app.Handle(http.MethodPost, version, "/admin/oracle/:asset", prv.SetRate)
}
