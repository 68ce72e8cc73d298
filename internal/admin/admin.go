// Package admin provides the back office HTTP handlers: platform stats,
// the live investment book, and review queues for withdrawals and
// identity verifications.
package admin

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/solari/invest-engine/internal/accrual"
	"github.com/solari/invest-engine/internal/investment"
	"github.com/solari/invest-engine/internal/metrics"
	"github.com/solari/invest-engine/internal/model"
	"github.com/solari/invest-engine/internal/store"
)

// withdrawalTransitions maps an action to the (from, to) statuses it moves
// a withdrawal between.
var withdrawalTransitions = map[string][2]string{
	"approve": {model.WithdrawalPending, model.WithdrawalApproved},
	"reject":  {model.WithdrawalPending, model.WithdrawalRejected},
	"paid":    {model.WithdrawalApproved, model.WithdrawalPaid},
}

var verificationTransitions = map[string]string{
	"approve": model.VerificationApproved,
	"reject":  model.VerificationRejected,
}

// Service serves the admin API.
type Service struct {
	store  store.Store
	engine *accrual.Engine
	token  string
	now    func() time.Time
}

// NewService creates the admin service. An empty token disables every
// admin route.
func NewService(st store.Store, engine *accrual.Engine, token string) *Service {
	return &Service{store: st, engine: engine, token: token, now: time.Now}
}

// WithClock replaces the wall clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Routes registers the admin handlers on r behind bearer authentication.
func (s *Service) Routes(r chi.Router) {
	r.Use(s.authenticate)

	r.Get("/stats", s.GetStats)
	r.Get("/investments", s.ListInvestments)

	r.Get("/withdrawals", s.ListWithdrawals)
	r.Post("/withdrawals/{id}/{action}", s.TransitionWithdrawal)

	r.Get("/verifications", s.ListVerifications)
	r.Post("/verifications/{id}/{action}", s.TransitionVerification)
}

func (s *Service) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !BearerMatches(r, s.token) {
			writeError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerMatches reports whether the request carries "Bearer <token>".
// An empty token never matches.
func BearerMatches(r *http.Request, token string) bool {
	if token == "" {
		return false
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// GetStats handles GET /api/v1/admin/stats
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		slog.Error("load stats", "error", err)
		writeError(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListInvestments handles GET /api/v1/admin/investments?status=active
// Every row carries a live snapshot.
func (s *Service) ListInvestments(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", model.StatusActive, model.StatusCompleted:
	default:
		writeError(w, "unknown status", http.StatusBadRequest)
		return
	}
	invs, err := s.store.ListInvestments(r.Context(), status)
	if err != nil {
		writeErr(w, err)
		return
	}
	views, err := investment.Views(r.Context(), s.store, s.engine, invs, s.now())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// ListWithdrawals handles GET /api/v1/admin/withdrawals?status=pending
func (s *Service) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListWithdrawals(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if list == nil {
		list = []model.Withdrawal{}
	}
	writeJSON(w, http.StatusOK, list)
}

// TransitionWithdrawal handles POST /api/v1/admin/withdrawals/{id}/{approve|reject|paid}
func (s *Service) TransitionWithdrawal(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	t, ok := withdrawalTransitions[action]
	if !ok {
		writeError(w, "unknown action", http.StatusNotFound)
		return
	}
	id := chi.URLParam(r, "id")
	wd, err := s.store.TransitionWithdrawal(r.Context(), id, t[0], t[1])
	if err != nil {
		writeErr(w, err)
		return
	}
	metrics.Withdrawals.WithLabelValues(t[1]).Inc()
	slog.Info("withdrawal transitioned", "withdrawal_id", id, "user", wd.UserID, "status", t[1], "amount", wd.Amount.String())
	writeJSON(w, http.StatusOK, wd)
}

// ListVerifications handles GET /api/v1/admin/verifications?status=pending
func (s *Service) ListVerifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListVerifications(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if list == nil {
		list = []model.Verification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// TransitionVerification handles POST /api/v1/admin/verifications/{id}/{approve|reject}
func (s *Service) TransitionVerification(w http.ResponseWriter, r *http.Request) {
	to, ok := verificationTransitions[chi.URLParam(r, "action")]
	if !ok {
		writeError(w, "unknown action", http.StatusNotFound)
		return
	}
	id := chi.URLParam(r, "id")
	v, err := s.store.TransitionVerification(r.Context(), id, to)
	if err != nil {
		writeErr(w, err)
		return
	}
	slog.Info("verification resolved", "verification_id", id, "user", v.UserID, "status", to)
	writeJSON(w, http.StatusOK, v)
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrStatusConflict):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("admin request failed", "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
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
