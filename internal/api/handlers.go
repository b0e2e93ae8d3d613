package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"github.com/susupay/walletops/internal/domain"
	"github.com/susupay/walletops/internal/processor"
	"github.com/susupay/walletops/internal/service"
	"github.com/susupay/walletops/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	store     store.Store
	balances  *service.BalanceService
	transfers *service.TransferService
	topups    *service.TopUpService
	payouts   *service.PayoutService
	tontines  *service.TontineService
	webhooks  *service.WebhookService
	validate  *validator.Validate
}

func NewHandler(st store.Store, balances *service.BalanceService, transfers *service.TransferService, topups *service.TopUpService, payouts *service.PayoutService, tontines *service.TontineService, webhooks *service.WebhookService) *Handler {
	return &Handler{
		store:     st,
		balances:  balances,
		transfers: transfers,
		topups:    topups,
		payouts:   payouts,
		tontines:  tontines,
		webhooks:  webhooks,
		validate:  validator.New(),
	}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createAccountRequest struct {
	Currency string `json:"currency"`
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Currency == "" {
		req.Currency = "XOF"
	}

	account, err := h.store.CreateAccount(r.Context(), req.Currency)
	if err != nil {
		h.respond(w, "POST", "/accounts", http.StatusInternalServerError, map[string]string{"error": "System error creating account"})
		return
	}
	h.respond(w, "POST", "/accounts", http.StatusCreated, account)
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respond(w, "GET", "/accounts/{id}", http.StatusBadRequest, errBody("Invalid account id"))
		return
	}
	if !h.authorizeAccount(w, r, "GET", "/accounts/{id}", id) {
		return
	}

	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		h.respondError(w, "GET", "/accounts/{id}", err)
		return
	}

	balance, err := h.balances.DisplayBalance(r.Context(), id)
	if err != nil {
		h.respondError(w, "GET", "/accounts/{id}", err)
		return
	}

	h.respond(w, "GET", "/accounts/{id}", http.StatusOK, map[string]interface{}{
		"account": account,
		"balance": balance,
	})
}

func (h *Handler) GetAccountEntriesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respond(w, "GET", "/accounts/{id}/entries", http.StatusBadRequest, errBody("Invalid account id"))
		return
	}
	if !h.authorizeAccount(w, r, "GET", "/accounts/{id}/entries", id) {
		return
	}

	if _, err := h.store.GetAccount(r.Context(), id); err != nil {
		h.respondError(w, "GET", "/accounts/{id}/entries", err)
		return
	}

	entries, err := h.store.EntriesForAccount(r.Context(), id, 100)
	if err != nil {
		h.respondError(w, "GET", "/accounts/{id}/entries", err)
		return
	}
	h.respond(w, "GET", "/accounts/{id}/entries", http.StatusOK, entries)
}

type transferRequest struct {
	RecipientID int64           `json:"recipient_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Description string          `json:"description"`
}

func (h *Handler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/transfers"))
	defer timer.ObserveDuration()

	senderID, ok := accountIDFrom(r)
	if !ok {
		h.respond(w, "POST", "/transfers", http.StatusUnauthorized, errBody("Unauthenticated"))
		return
	}

	var req transferRequest
	if !h.decode(w, r, "POST", "/transfers", &req) {
		return
	}

	entry, err := h.transfers.SendMoney(r.Context(), senderID, req.RecipientID, req.Amount, req.Description)
	if err != nil {
		h.respondError(w, "POST", "/transfers", err)
		return
	}
	h.respond(w, "POST", "/transfers", http.StatusCreated, entry)
}

type topUpRequest struct {
	Amount           decimal.Decimal `json:"amount" validate:"required"`
	PaymentMethodRef string          `json:"payment_method_ref" validate:"required"`
}

func (h *Handler) CreateTopUpHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFrom(r)
	if !ok {
		h.respond(w, "POST", "/topups", http.StatusUnauthorized, errBody("Unauthenticated"))
		return
	}

	var req topUpRequest
	if !h.decode(w, r, "POST", "/topups", &req) {
		return
	}

	intent, token, err := h.topups.CreateIntent(r.Context(), accountID, req.Amount, req.PaymentMethodRef)
	if err != nil {
		h.respondError(w, "POST", "/topups", err)
		return
	}
	h.respond(w, "POST", "/topups", http.StatusCreated, map[string]interface{}{
		"intent":       intent,
		"client_token": token,
	})
}

type payoutRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

func (h *Handler) CreatePayoutHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/payouts"))
	defer timer.ObserveDuration()

	accountID, ok := accountIDFrom(r)
	if !ok {
		h.respond(w, "POST", "/payouts", http.StatusUnauthorized, errBody("Unauthenticated"))
		return
	}

	var req payoutRequest
	if !h.decode(w, r, "POST", "/payouts", &req) {
		return
	}

	request, err := h.payouts.RequestPayout(r.Context(), accountID, req.Amount)
	if err != nil {
		// A processor failure still produced a resolved, failed request;
		// surface it as such rather than a bare 500.
		var procErr *domain.ExternalProcessorError
		if errors.As(err, &procErr) && request != nil {
			h.respond(w, "POST", "/payouts", http.StatusBadGateway, map[string]interface{}{
				"payout": request,
				"error":  "Payout failed at the payment provider",
			})
			return
		}
		h.respondError(w, "POST", "/payouts", err)
		return
	}
	h.respond(w, "POST", "/payouts", http.StatusCreated, request)
}

func (h *Handler) GetPayoutHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respond(w, "GET", "/payouts/{id}", http.StatusBadRequest, errBody("Invalid payout id"))
		return
	}

	request, err := h.store.GetPayoutRequest(r.Context(), id)
	if err != nil {
		h.respondError(w, "GET", "/payouts/{id}", err)
		return
	}
	h.respond(w, "GET", "/payouts/{id}", http.StatusOK, request)
}

type contributionRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

func (h *Handler) TontineContributeHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFrom(r)
	if !ok {
		h.respond(w, "POST", "/tontines/{id}/contributions", http.StatusUnauthorized, errBody("Unauthenticated"))
		return
	}

	tontineID, err := pathID(r, "id")
	if err != nil {
		h.respond(w, "POST", "/tontines/{id}/contributions", http.StatusBadRequest, errBody("Invalid tontine id"))
		return
	}

	var req contributionRequest
	if !h.decode(w, r, "POST", "/tontines/{id}/contributions", &req) {
		return
	}

	contribution, err := h.tontines.MakeContribution(r.Context(), tontineID, accountID, req.Amount)
	if err != nil {
		h.respondError(w, "POST", "/tontines/{id}/contributions", err)
		return
	}
	h.respond(w, "POST", "/tontines/{id}/contributions", http.StatusCreated, contribution)
}

func (h *Handler) TontineCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFrom(r)
	if !ok {
		h.respond(w, "POST", "/tontines/{id}/checkout", http.StatusUnauthorized, errBody("Unauthenticated"))
		return
	}

	tontineID, err := pathID(r, "id")
	if err != nil {
		h.respond(w, "POST", "/tontines/{id}/checkout", http.StatusBadRequest, errBody("Invalid tontine id"))
		return
	}

	session, err := h.tontines.StartCheckout(r.Context(), tontineID, accountID)
	if err != nil {
		h.respondError(w, "POST", "/tontines/{id}/checkout", err)
		return
	}
	h.respond(w, "POST", "/tontines/{id}/checkout", http.StatusCreated, session)
}

type tontinePayoutRequest struct {
	MemberID int64 `json:"member_id" validate:"required"`
}

func (h *Handler) TontinePayoutHandler(w http.ResponseWriter, r *http.Request) {
	tontineID, err := pathID(r, "id")
	if err != nil {
		h.respond(w, "POST", "/tontines/{id}/payouts", http.StatusBadRequest, errBody("Invalid tontine id"))
		return
	}

	var req tontinePayoutRequest
	if !h.decode(w, r, "POST", "/tontines/{id}/payouts", &req) {
		return
	}

	payout, err := h.tontines.PayoutMember(r.Context(), tontineID, req.MemberID)
	if err != nil {
		h.respondError(w, "POST", "/tontines/{id}/payouts", err)
		return
	}
	h.respond(w, "POST", "/tontines/{id}/payouts", http.StatusCreated, payout)
}

// WebhookHandler ingests provider notifications. The raw body is what was
// signed; it must reach the verifier unmodified.
func (h *Handler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/webhooks/processor"))
	defer timer.ObserveDuration()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respond(w, "POST", "/webhooks/processor", http.StatusInternalServerError, errBody("Stream read error"))
		return
	}

	signature := r.Header.Get(processor.SignatureHeader)
	if err := h.webhooks.Process(r.Context(), body, signature); err != nil {
		h.respondError(w, "POST", "/webhooks/processor", err)
		return
	}
	h.respond(w, "POST", "/webhooks/processor", http.StatusOK, map[string]string{"status": "ok"})
}

// authorizeAccount enforces that the caller only reads their own account.
func (h *Handler) authorizeAccount(w http.ResponseWriter, r *http.Request, method, endpoint string, accountID int64) bool {
	callerID, ok := accountIDFrom(r)
	if !ok {
		h.respond(w, method, endpoint, http.StatusUnauthorized, errBody("Unauthenticated"))
		return false
	}
	if callerID != accountID {
		h.respond(w, method, endpoint, http.StatusForbidden, errBody("Not your account"))
		return false
	}
	return true
}

// decode unmarshals and validates a JSON request body, answering 400/422
// itself when the payload is unusable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, method, endpoint string, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respond(w, method, endpoint, http.StatusBadRequest, errBody("Malformed JSON body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respond(w, method, endpoint, http.StatusUnprocessableEntity, errBody(err.Error()))
		return false
	}
	return true
}

// respondError maps domain errors to HTTP status codes.
func (h *Handler) respondError(w http.ResponseWriter, method, endpoint string, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrAmountTooSmall),
		errors.Is(err, domain.ErrPayoutsNotEnabled):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrPayoutNotFound),
		errors.Is(err, domain.ErrIntentNotFound),
		errors.Is(err, domain.ErrTontineNotFound),
		errors.Is(err, domain.ErrMemberNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotAMember):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidSignature):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrDuplicateReference),
		errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	default:
		var procErr *domain.ExternalProcessorError
		if errors.As(err, &procErr) {
			status = http.StatusBadGateway
		} else {
			status = http.StatusInternalServerError
		}
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal Server Error"
	}
	h.respond(w, method, endpoint, status, errBody(msg))
}

func (h *Handler) respond(w http.ResponseWriter, method, endpoint string, code int, payload interface{}) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	respondWithJSON(w, code, payload)
}

func errBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func pathID(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[key], 10, 64)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errBody(message))
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
