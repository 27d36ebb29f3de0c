package simulator

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/pesaplay/mpesa-sim/internal/apilog"
	"github.com/pesaplay/mpesa-sim/internal/eventbus"
	"github.com/pesaplay/mpesa-sim/internal/simulator/httphandler"
	"github.com/pesaplay/mpesa-sim/internal/simulator/middleware"
)

// NewRouter assembles one project's sandbox router: CORS (the desktop shell
// drives it from a browser over localhost), panic recovery, metrics, the
// API request log, then bearer-token auth in front of every endpoint except
// OAuth itself.
func NewRouter(state *State, bus eventbus.Bus) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.AllowAll().Handler)
	r.Use(middleware.RecoverHandler)
	r.Use(middleware.MetricsRequestHandler(state.MonitorService))
	r.Use(apilog.NewMiddleware(state.DBConnectionPool, state.Models, bus).Handler)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/oauth/v1/generate", httphandler.OAuthHandler(state))

	r.Group(func(authed chi.Router) {
		authed.Use(middleware.AuthenticateMiddleware(state.Credentials))
		authed.Post("/mpesa/stkpush/v1/processrequest", httphandler.STKPushHandler(state))
		authed.Post("/mpesa/c2b/v1/registerurl", httphandler.C2BRegisterHandler(state))
		authed.Post("/mpesa/c2b/v1/simulate", httphandler.C2BSimulateHandler(state))
		authed.Post("/mpesa/b2c/v1/paymentrequest", httphandler.B2CHandler(state))
	})

	return r
}
