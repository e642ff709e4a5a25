package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/budgetme/ledger/internal/database"
	"github.com/budgetme/ledger/internal/database/repository"
	"github.com/budgetme/ledger/internal/logger"
	"github.com/budgetme/ledger/internal/money"
	"github.com/budgetme/ledger/internal/service"
)

// Handler wires the engine services to their JSON endpoints.
type Handler struct {
	Ledger      *service.LedgerService
	Goals       *service.GoalService
	Maintenance *service.MaintenanceService
	Log         zerolog.Logger
}

// Router builds the HTTP routing table with logging, recovery, and
// principal extraction applied to every endpoint.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/accounts", h.createAccount)
	mux.HandleFunc("GET /api/accounts", h.listAccounts)
	mux.HandleFunc("GET /api/accounts/{id}", h.getAccount)
	mux.HandleFunc("PATCH /api/accounts/{id}", h.updateAccount)
	mux.HandleFunc("DELETE /api/accounts/{id}", h.deleteAccount)
	mux.HandleFunc("POST /api/accounts/{id}/cash-in", h.cashIn)
	mux.HandleFunc("GET /api/accounts/{id}/history", h.accountHistory)
	mux.HandleFunc("POST /api/accounts/{id}/verify", h.verifyAccount)

	mux.HandleFunc("POST /api/transactions", h.createTransaction)
	mux.HandleFunc("PATCH /api/transactions/{id}", h.updateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", h.deleteTransaction)

	mux.HandleFunc("GET /api/audit/{entityId}", h.auditHistory)

	mux.HandleFunc("POST /api/goals", h.createGoal)
	mux.HandleFunc("POST /api/goals/{id}/contributions", h.contribute)

	mux.HandleFunc("POST /api/admin/purge-audit", h.purgeAudit)
	mux.HandleFunc("POST /api/admin/reset", h.reset)

	var handler http.Handler = mux
	handler = Principal(handler)
	handler = Recovery(h.Log)(handler)
	handler = Logger(h.Log)(handler)
	return handler
}

type accountCreateRequest struct {
	Name           string  `json:"name"`
	AccountType    string  `json:"account_type"`
	InitialBalance string  `json:"initial_balance"`
	Currency       string  `json:"currency"`
	IsDefault      bool    `json:"is_default"`
	Color          *string `json:"color"`
	Description    *string `json:"description"`
	Institution    *string `json:"institution"`
	MaskedNumber   *string `json:"masked_number"`
}

type accountPatchRequest struct {
	Name         *string `json:"name"`
	AccountType  *string `json:"account_type"`
	Status       *string `json:"status"`
	IsDefault    *bool   `json:"is_default"`
	Color        *string `json:"color"`
	Description  *string `json:"description"`
	Institution  *string `json:"institution"`
	MaskedNumber *string `json:"masked_number"`
}

type accountResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	AccountType    string    `json:"account_type"`
	Balance        string    `json:"balance"`
	InitialBalance string    `json:"initial_balance"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	IsDefault      bool      `json:"is_default"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toAccountResponse(a repository.Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Name:           a.Name,
		AccountType:    a.AccountType,
		Balance:        money.FormatCents(a.BalanceCents),
		InitialBalance: money.FormatCents(a.InitialBalanceCents),
		Currency:       a.Currency,
		Status:         a.Status,
		IsDefault:      a.IsDefault,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

type transactionCreateRequest struct {
	Type              string  `json:"type"`
	Amount            string  `json:"amount"`
	AccountID         string  `json:"account_id"`
	TransferAccountID *string `json:"transfer_account_id"`
	CategoryID        *string `json:"category_id"`
	Date              string  `json:"date"`
	Description       *string `json:"description"`
	Status            string  `json:"status"`
}

type transactionPatchRequest struct {
	Type              *string `json:"type"`
	Amount            *string `json:"amount"`
	AccountID         *string `json:"account_id"`
	TransferAccountID *string `json:"transfer_account_id"`
	CategoryID        *string `json:"category_id"`
	Date              *string `json:"date"`
	Description       *string `json:"description"`
	Status            *string `json:"status"`
}

type transactionResponse struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	Amount            string    `json:"amount"`
	AccountID         string    `json:"account_id"`
	TransferAccountID *string   `json:"transfer_account_id,omitempty"`
	CategoryID        *string   `json:"category_id,omitempty"`
	Date              time.Time `json:"date"`
	Description       *string   `json:"description,omitempty"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

func toTransactionResponse(t repository.Transaction) transactionResponse {
	return transactionResponse{
		ID:                t.ID,
		Type:              t.Type,
		Amount:            money.FormatCents(t.AmountCents),
		AccountID:         t.AccountID,
		TransferAccountID: t.TransferAccountID,
		CategoryID:        t.CategoryID,
		Date:              t.Date,
		Description:       t.Description,
		Status:            t.Status,
		CreatedAt:         t.CreatedAt,
	}
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	initialCents := int64(0)
	if req.InitialBalance != "" {
		cents, err := money.ParseCents(req.InitialBalance)
		if err != nil {
			h.writeFieldError(w, "initial_balance", "must be a decimal amount")
			return
		}
		initialCents = cents
	}
	a, err := h.Ledger.CreateAccount(r.Context(), principalFrom(r), service.CreateAccountInput{
		Name:                req.Name,
		AccountType:         req.AccountType,
		InitialBalanceCents: initialCents,
		Currency:            req.Currency,
		IsDefault:           req.IsDefault,
		Color:               req.Color,
		Description:         req.Description,
		Institution:         req.Institution,
		MaskedNumber:        req.MaskedNumber,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toAccountResponse(*a))
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Ledger.ListAccounts(r.Context(), principalFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"accounts": out, "count": len(out)})
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.Ledger.GetAccount(r.Context(), principalFrom(r), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toAccountResponse(*a))
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := h.Ledger.UpdateAccount(r.Context(), principalFrom(r), r.PathValue("id"), service.AccountPatch{
		Name:         req.Name,
		AccountType:  req.AccountType,
		Status:       req.Status,
		IsDefault:    req.IsDefault,
		Color:        req.Color,
		Description:  req.Description,
		Institution:  req.Institution,
		MaskedNumber: req.MaskedNumber,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toAccountResponse(*a))
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteAccount(r.Context(), principalFrom(r), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cashIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount      string  `json:"amount"`
		Date        string  `json:"date"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cents, err := money.ParseCents(req.Amount)
	if err != nil {
		h.writeFieldError(w, "amount", "must be a decimal amount")
		return
	}
	date, ok := parseDate(req.Date)
	if !ok {
		h.writeFieldError(w, "date", "must be RFC 3339 or YYYY-MM-DD")
		return
	}
	t, err := h.Ledger.CashIn(r.Context(), principalFrom(r), r.PathValue("id"), cents, date, req.Description)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toTransactionResponse(*t))
}

func (h *Handler) accountHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	txs, err := h.Ledger.GetAccountHistory(r.Context(), principalFrom(r), r.PathValue("id"), limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"transactions": out, "count": len(out)})
}

func (h *Handler) verifyAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.VerifyAccount(r.Context(), principalFrom(r), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "consistent"})
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cents, err := money.ParseCents(req.Amount)
	if err != nil {
		h.writeFieldError(w, "amount", "must be a decimal amount")
		return
	}
	date, ok := parseDate(req.Date)
	if !ok {
		h.writeFieldError(w, "date", "must be RFC 3339 or YYYY-MM-DD")
		return
	}
	t, err := h.Ledger.CreateTransaction(r.Context(), principalFrom(r), service.CreateTransactionInput{
		Type:              req.Type,
		AmountCents:       cents,
		AccountID:         req.AccountID,
		TransferAccountID: req.TransferAccountID,
		CategoryID:        req.CategoryID,
		Date:              date,
		Description:       req.Description,
		Status:            req.Status,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toTransactionResponse(*t))
}

func (h *Handler) updateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	patch := service.TransactionPatch{
		Type:              req.Type,
		AccountID:         req.AccountID,
		TransferAccountID: req.TransferAccountID,
		CategoryID:        req.CategoryID,
		Description:       req.Description,
		Status:            req.Status,
	}
	if req.Amount != nil {
		cents, err := money.ParseCents(*req.Amount)
		if err != nil {
			h.writeFieldError(w, "amount", "must be a decimal amount")
			return
		}
		patch.AmountCents = &cents
	}
	if req.Date != nil {
		date, ok := parseDate(*req.Date)
		if !ok {
			h.writeFieldError(w, "date", "must be RFC 3339 or YYYY-MM-DD")
			return
		}
		patch.Date = &date
	}
	t, err := h.Ledger.UpdateTransaction(r.Context(), principalFrom(r), r.PathValue("id"), patch)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toTransactionResponse(*t))
}

func (h *Handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteTransaction(r.Context(), principalFrom(r), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) auditHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	entries, err := h.Ledger.GetAuditHistory(r.Context(), principalFrom(r), r.PathValue("entityId"), limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (h *Handler) createGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string  `json:"name"`
		Target     string  `json:"target"`
		TargetDate *string `json:"target_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cents, err := money.ParseCents(req.Target)
	if err != nil {
		h.writeFieldError(w, "target", "must be a decimal amount")
		return
	}
	var targetDate *time.Time
	if req.TargetDate != nil {
		d, ok := parseDate(*req.TargetDate)
		if !ok {
			h.writeFieldError(w, "target_date", "must be RFC 3339 or YYYY-MM-DD")
			return
		}
		targetDate = &d
	}
	g, err := h.Goals.CreateGoal(r.Context(), principalFrom(r), service.CreateGoalInput{
		Name:        req.Name,
		TargetCents: cents,
		TargetDate:  targetDate,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{
		"id":      g.ID,
		"name":    g.Name,
		"target":  money.FormatCents(g.TargetCents),
		"current": money.FormatCents(g.CurrentCents),
		"status":  g.Status,
	})
}

func (h *Handler) contribute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"account_id"`
		Amount    string `json:"amount"`
		Date      string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cents, err := money.ParseCents(req.Amount)
	if err != nil {
		h.writeFieldError(w, "amount", "must be a decimal amount")
		return
	}
	date, ok := parseDate(req.Date)
	if !ok {
		h.writeFieldError(w, "date", "must be RFC 3339 or YYYY-MM-DD")
		return
	}
	t, err := h.Goals.Contribute(r.Context(), principalFrom(r), r.PathValue("id"), req.AccountID, cents, date)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toTransactionResponse(*t))
}

func (h *Handler) purgeAudit(w http.ResponseWriter, r *http.Request) {
	purged, err := h.Maintenance.PurgeAuditLog(r.Context(), database.Now())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"purged": purged})
}

// reset wipes all user data while keeping the schema. Destructive, admin
// only; the deployment is expected to gate /api/admin/ routes upstream.
func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.Maintenance.Reset(r.Context()); err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// writeServiceError maps the engine error taxonomy onto HTTP statuses.
// ValidationFailed and NotFound are structured results, never opaque 500s.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	var nf *service.NotFoundError
	var inv *service.InvariantViolationError
	switch {
	case errors.Is(err, service.ErrAuthenticationRequired):
		WriteError(w, http.StatusUnauthorized, "authentication required")
	case errors.As(err, &verr):
		WriteJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": verr.Fields})
	case errors.As(err, &nf):
		WriteError(w, http.StatusNotFound, nf.Error())
	case errors.Is(err, service.ErrConcurrencyConflict):
		WriteError(w, http.StatusConflict, "concurrent update conflict, retry")
	case errors.As(err, &inv):
		logger.Critical(h.Log).Err(err).Msg("invariant violation surfaced to API")
		WriteError(w, http.StatusInternalServerError, "ledger invariant violation")
	default:
		h.Log.Error().Err(err).Msg("request failed")
		WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeFieldError(w http.ResponseWriter, field, reason string) {
	WriteJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": map[string]string{field: reason},
	})
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return database.Now(), true
	}
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		return d.UTC(), true
	}
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d, true
	}
	return time.Time{}, false
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}
