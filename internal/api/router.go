package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// NewRouter assembles the HTTP surface. The webhook route authenticates by
// payload signature instead of a bearer token; everything that acts on a
// caller's own account sits behind the JWT middleware.
func NewRouter(h *Handler, jwtSecret string) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	limiter := NewIPRateLimiter(rate.Limit(50), 100)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(limiter.Middleware)

	apiV1.HandleFunc("/accounts", h.CreateAccountHandler).Methods("POST")
	apiV1.HandleFunc("/webhooks/processor", h.WebhookHandler).Methods("POST")

	authed := apiV1.NewRoute().Subrouter()
	authed.Use(mux.MiddlewareFunc(AuthMiddleware(jwtSecret)))
	authed.HandleFunc("/accounts/{id}", h.GetAccountHandler).Methods("GET")
	authed.HandleFunc("/accounts/{id}/entries", h.GetAccountEntriesHandler).Methods("GET")
	authed.HandleFunc("/transfers", h.CreateTransferHandler).Methods("POST")
	authed.HandleFunc("/topups", h.CreateTopUpHandler).Methods("POST")
	authed.HandleFunc("/payouts", h.CreatePayoutHandler).Methods("POST")
	authed.HandleFunc("/payouts/{id}", h.GetPayoutHandler).Methods("GET")
	authed.HandleFunc("/tontines/{id}/contributions", h.TontineContributeHandler).Methods("POST")
	authed.HandleFunc("/tontines/{id}/checkout", h.TontineCheckoutHandler).Methods("POST")
	authed.HandleFunc("/tontines/{id}/payouts", h.TontinePayoutHandler).Methods("POST")

	return r
}
