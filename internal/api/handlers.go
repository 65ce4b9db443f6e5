/**
 * @description
 * This file contains the HTTP handlers for the admin console API. Handlers parse the
 * request, call the session gate or the ledger service, and translate outcomes and
 * sentinel errors into JSON responses.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameters.
 * - github.com/shopspring/decimal: Amounts in request bodies.
 * - internal/app, internal/engine, internal/session: Operations and their errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/transfa/admin-service/internal/app"
	"github.com/transfa/admin-service/internal/domain"
	"github.com/transfa/admin-service/internal/engine"
	"github.com/transfa/admin-service/internal/session"
)

// SessionGate is the operator session the console logs into.
type SessionGate interface {
	Authenticator
	Login(ctx context.Context, password string) (session.Token, error)
	Logout()
	Status() session.Status
	SetNavigation(nav session.Navigation) error
	Snapshot() (domain.Snapshot, error)
}

// Ledger runs operator actions and read views.
type Ledger interface {
	ApproveWithdraw(ctx context.Context, transactionID string) (app.Result, error)
	RejectWithdraw(ctx context.Context, transactionID string) (app.Result, error)
	ApproveDeposit(ctx context.Context, transactionID string) (app.Result, error)
	RejectDeposit(ctx context.Context, transactionID string) (app.Result, error)
	SendAgentBonus(ctx context.Context, agentID string, amount decimal.Decimal) (app.Result, error)
	AdjustUserBalance(ctx context.Context, userID string, delta decimal.Decimal, note string) (app.Result, error)
	Dashboard() (app.DashboardStats, error)
	UserHistory(userID string) ([]domain.Transaction, error)
	MonthlyReport(month string) (app.MonthlyReport, error)
	Transactions(kind domain.TransactionType, status domain.TransactionStatus) ([]domain.Transaction, error)
}

// AdminHandlers holds the collaborators the handlers use.
type AdminHandlers struct {
	sessions SessionGate
	ledger   Ledger
	logger   *slog.Logger
	now      func() time.Time
}

type loginRequest struct {
	Password string `json:"password"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

// NewAdminHandlers creates a new instance of AdminHandlers.
func NewAdminHandlers(sessions SessionGate, ledger Ledger, logger *slog.Logger) *AdminHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandlers{
		sessions: sessions,
		ledger:   ledger,
		logger:   logger.With("component", "api"),
		now:      time.Now,
	}
}

// LoginHandler opens the session and returns its bearer token.
func (h *AdminHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	token, err := h.sessions.Login(r.Context(), req.Password)
	if err != nil {
		h.fail(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// LogoutHandler closes the session; the token stops working immediately.
func (h *AdminHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout()
	writeJSON(w, http.StatusOK, h.sessions.Status())
}

func (h *AdminHandlers) SessionStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Status())
}

// NavigationHandler replaces the operator's selection state.
func (h *AdminHandlers) NavigationHandler(w http.ResponseWriter, r *http.Request) {
	var nav session.Navigation
	if err := json.NewDecoder(r.Body).Decode(&nav); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := h.sessions.SetNavigation(nav); err != nil {
		h.fail(w, "navigation", err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.Status())
}

func (h *AdminHandlers) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Dashboard()
	if err != nil {
		h.fail(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandlers) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, "list_users")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap.Users)
}

func (h *AdminHandlers) ListAgentsHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, "list_agents")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap.Agents)
}

func (h *AdminHandlers) ListDepositMethodsHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, "list_deposit_methods")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap.DepositMethods)
}

func (h *AdminHandlers) SettingsHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, "settings")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap.Settings)
}

// ListTransactionsHandler lists transactions, optionally filtered by ?type= and ?status=.
func (h *AdminHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	kind := domain.TransactionType(strings.TrimSpace(r.URL.Query().Get("type")))
	status := domain.TransactionStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	txs, err := h.ledger.Transactions(kind, status)
	if err != nil {
		h.fail(w, "list_transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *AdminHandlers) UserHistoryHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := h.ledger.UserHistory(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "user_history", err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// MonthlyReportHandler reports agent activity for ?month=YYYY-MM, the current month by default.
func (h *AdminHandlers) MonthlyReportHandler(w http.ResponseWriter, r *http.Request) {
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if month == "" {
		month = h.now().UTC().Format("2006-01")
	}
	report, err := h.ledger.MonthlyReport(month)
	if err != nil {
		h.fail(w, "monthly_report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// WithdrawDecisionHandler approves or rejects a pending withdrawal.
func (h *AdminHandlers) WithdrawDecisionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	action, err := engine.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		h.fail(w, "withdraw_decision", err)
		return
	}

	var result app.Result
	if action == engine.ActionApprove {
		result, err = h.ledger.ApproveWithdraw(r.Context(), id)
	} else {
		result, err = h.ledger.RejectWithdraw(r.Context(), id)
	}
	if err != nil {
		h.fail(w, "withdraw_decision", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DepositDecisionHandler approves or rejects a pending deposit.
func (h *AdminHandlers) DepositDecisionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	action, err := engine.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		h.fail(w, "deposit_decision", err)
		return
	}

	var result app.Result
	if action == engine.ActionApprove {
		result, err = h.ledger.ApproveDeposit(r.Context(), id)
	} else {
		result, err = h.ledger.RejectDeposit(r.Context(), id)
	}
	if err != nil {
		h.fail(w, "deposit_decision", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandlers) AgentBonusHandler(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	result, err := h.ledger.SendAgentBonus(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		h.fail(w, "agent_bonus", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandlers) AdjustUserBalanceHandler(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	result, err := h.ledger.AdjustUserBalance(r.Context(), chi.URLParam(r, "id"), req.Amount, strings.TrimSpace(req.Note))
	if err != nil {
		h.fail(w, "adjust_balance", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandlers) snapshot(w http.ResponseWriter, endpoint string) (domain.Snapshot, bool) {
	snap, err := h.sessions.Snapshot()
	if err != nil {
		h.fail(w, endpoint, err)
		return domain.Snapshot{}, false
	}
	return snap, true
}

// fail maps an operation error to its HTTP status and writes it.
func (h *AdminHandlers) fail(w http.ResponseWriter, endpoint string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "endpoint", endpoint, "error", err)
		writeError(w, status, "The ledger store could not be updated. Please retry.")
		return
	}
	h.logger.Warn("request rejected", "endpoint", endpoint, "status", status, "error", err)
	writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrTransactionNotFound),
		errors.Is(err, engine.ErrUserNotFound),
		errors.Is(err, engine.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrInsufficientAgentFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrTransactionNotPending),
		errors.Is(err, app.ErrStaleSnapshot),
		errors.Is(err, app.ErrActionInFlight):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrInvalidAction),
		errors.Is(err, engine.ErrWrongTransactionKind),
		errors.Is(err, app.ErrInvalidMonth),
		errors.Is(err, session.ErrInvalidNavigation):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrStoreWriteFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
