package investment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/solari/invest-engine/internal/accrual"
	"github.com/solari/invest-engine/internal/exposure"
	"github.com/solari/invest-engine/internal/lock"
	"github.com/solari/invest-engine/internal/model"
	"github.com/solari/invest-engine/internal/plan"
	"github.com/solari/invest-engine/internal/store"
)

// maxWebhookBody caps the payment webhook payload.
const maxWebhookBody = 64 << 10

// Routes registers the user-facing handlers on r.
func (s *Service) Routes(r chi.Router) {
	r.Get("/plans", s.ListPlans)

	r.Post("/accounts", s.CreateAccount)
	r.Get("/accounts/{userID}", s.GetAccount)

	r.Post("/invest", s.Invest)
	r.Get("/investments/{userID}", s.ListInvestments)
	r.Get("/investments/{userID}/{investmentID}/snapshot", s.GetSnapshot)
	r.Post("/quote", s.PostQuote)

	r.Post("/withdrawals", s.CreateWithdrawal)
	r.Get("/withdrawals/{userID}", s.ListWithdrawals)
	r.Get("/transactions/{userID}", s.ListTransactions)

	r.Post("/verifications", s.CreateVerification)

	r.Post("/payments/webhook", s.PaymentWebhook)
}

// ListPlans handles GET /api/v1/plans
func (s *Service) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.store.ListPlans(r.Context())
	if err != nil {
		writeError(w, "failed to list plans", http.StatusInternalServerError)
		return
	}
	if plans == nil {
		plans = []model.Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

// CreateAccount handles POST /api/v1/accounts
func (s *Service) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Email  string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	a, err := s.OpenAccount(r.Context(), req.UserID, req.Email)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GetAccount handles GET /api/v1/accounts/{userID}
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAccount(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Invest handles POST /api/v1/invest
// Places a new investment or tops up the active one in the same plan.
func (s *Service) Invest(w http.ResponseWriter, r *http.Request) {
	var req PlaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := s.Place(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	status := http.StatusCreated
	if res.Type == KindTopUp {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// ListInvestments handles GET /api/v1/investments/{userID}
func (s *Service) ListInvestments(w http.ResponseWriter, r *http.Request) {
	views, err := s.UserInvestments(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// GetSnapshot handles GET /api/v1/investments/{userID}/{investmentID}/snapshot?at=RFC3339
func (s *Service) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	at := s.now()
	if v := r.URL.Query().Get("at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, "at must be an RFC3339 timestamp", http.StatusBadRequest)
			return
		}
		at = t
	}
	snap, err := s.SnapshotAt(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "investmentID"), at)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PostQuote handles POST /api/v1/quote
func (s *Service) PostQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	snap, err := s.Quote(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// CreateWithdrawal handles POST /api/v1/withdrawals
func (s *Service) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string          `json:"user_id"`
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	wd, err := s.RequestWithdrawal(r.Context(), req.UserID, req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

// ListWithdrawals handles GET /api/v1/withdrawals/{userID}
func (s *Service) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListWithdrawalsByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if list == nil {
		list = []model.Withdrawal{}
	}
	writeJSON(w, http.StatusOK, list)
}

// ListTransactions handles GET /api/v1/transactions/{userID}
func (s *Service) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.store.ListTransactions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// CreateVerification handles POST /api/v1/verifications
func (s *Service) CreateVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       string `json:"user_id"`
		DocumentType string `json:"document_type"`
		DocumentRef  string `json:"document_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	v, err := s.SubmitVerification(r.Context(), req.UserID, req.DocumentType, req.DocumentRef)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// PaymentWebhook handles POST /api/v1/payments/webhook
// The body must be signed with the shared webhook secret.
func (s *Service) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if err := s.VerifySignature(body, r.Header.Get(SignatureHeader)); err != nil {
		writeErr(w, err)
		return
	}

	var ev PaymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	outcome, err := s.Deposit(r.Context(), ev)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": outcome, "reference": ev.Reference})
}

// StatusFor maps a domain error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, accrual.ErrInvalidTerms),
		errors.Is(err, accrual.ErrUnknownPeriod),
		errors.Is(err, plan.ErrAmountOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientFunds),
		errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrStatusConflict),
		errors.Is(err, store.ErrDuplicateReference),
		errors.Is(err, exposure.ErrPerPlanLimitExceeded),
		errors.Is(err, exposure.ErrTotalLimitExceeded),
		errors.Is(err, lock.ErrNotObtained):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeErr writes err with the status StatusFor assigns. Internal errors
// are not echoed to the client.
func writeErr(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
