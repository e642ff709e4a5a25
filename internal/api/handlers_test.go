package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/budgetme/ledger/internal/database"
	"github.com/budgetme/ledger/internal/logger"
	"github.com/budgetme/ledger/internal/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(db))

	log := logger.NewWithWriter(io.Discard)
	ledger := &service.LedgerService{DB: db, Log: log, Alerts: &service.AlertService{DB: db, Log: log}}
	h := &Handler{
		Ledger:      ledger,
		Goals:       &service.GoalService{Ledger: ledger, Log: log},
		Maintenance: &service.MaintenanceService{DB: db, Log: log, Ledger: ledger},
		Log:         log,
	}
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, user string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func TestAccountEndpointsRoundTrip(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/accounts", "user-1", map[string]any{
		"name":            "Everyday",
		"account_type":    "checking",
		"initial_balance": "150.00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "150.00", body["balance"])
	id := body["id"].(string)

	resp, body = doJSON(t, srv, http.MethodGet, "/api/accounts/"+id, "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Everyday", body["name"])

	resp, body = doJSON(t, srv, http.MethodPatch, "/api/accounts/"+id, "user-1", map[string]any{
		"name": "Main Checking",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Main Checking", body["name"])

	resp, body = doJSON(t, srv, http.MethodGet, "/api/accounts", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["count"])

	resp, _ = doJSON(t, srv, http.MethodDelete, "/api/accounts/"+id, "user-1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTransactionMovesBalance(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	_, acct := doJSON(t, srv, http.MethodPost, "/api/accounts", "user-1", map[string]any{
		"name": "Everyday", "account_type": "checking",
	})
	id := acct["id"].(string)

	resp, tx := doJSON(t, srv, http.MethodPost, "/api/transactions", "user-1", map[string]any{
		"type": "income", "amount": "500.00", "account_id": id, "date": "2026-03-01",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "500.00", tx["amount"])
	require.Equal(t, "completed", tx["status"])

	_, acct = doJSON(t, srv, http.MethodGet, "/api/accounts/"+id, "user-1", nil)
	require.Equal(t, "500.00", acct["balance"])

	resp, _ = doJSON(t, srv, http.MethodPatch, "/api/transactions/"+tx["id"].(string), "user-1", map[string]any{
		"amount": "300.00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, acct = doJSON(t, srv, http.MethodGet, "/api/accounts/"+id, "user-1", nil)
	require.Equal(t, "300.00", acct["balance"])

	resp, verify := doJSON(t, srv, http.MethodPost, "/api/accounts/"+id+"/verify", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "consistent", verify["status"])
}

func TestValidationFailureReturnsFieldMap(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/accounts", "user-1", map[string]any{
		"name": "ab", "account_type": "offshore",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation failed", body["error"])

	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, fields, "name")
	require.Contains(t, fields, "account_type")
}

func TestUnparseableAmountIsFieldError(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/transactions", "user-1", map[string]any{
		"type": "income", "amount": "12.345", "account_id": "whatever",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, fields, "amount")
}

func TestMissingPrincipalIsUnauthorized(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/accounts", "", map[string]any{
		"name": "Everyday", "account_type": "checking",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnknownAccountIsNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	resp, _ := doJSON(t, srv, http.MethodGet, "/api/accounts/no-such-id", "user-1", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Another user's account looks exactly like a missing one.
	_, acct := doJSON(t, srv, http.MethodPost, "/api/accounts", "user-1", map[string]any{
		"name": "Everyday", "account_type": "checking",
	})
	resp, _ = doJSON(t, srv, http.MethodGet, "/api/accounts/"+acct["id"].(string), "user-2", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuditHistoryEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	_, acct := doJSON(t, srv, http.MethodPost, "/api/accounts", "user-1", map[string]any{
		"name": "Everyday", "account_type": "checking",
	})
	id := acct["id"].(string)

	resp, body := doJSON(t, srv, http.MethodGet, "/api/audit/"+id, "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["count"])
}

func TestGoalEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	_, acct := doJSON(t, srv, http.MethodPost, "/api/accounts", "user-1", map[string]any{
		"name": "Everyday", "account_type": "checking", "initial_balance": "100.00",
	})
	resp, goal := doJSON(t, srv, http.MethodPost, "/api/goals", "user-1", map[string]any{
		"name": "Holiday", "target": "50.00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, tx := doJSON(t, srv, http.MethodPost, "/api/goals/"+goal["id"].(string)+"/contributions", "user-1", map[string]any{
		"account_id": acct["id"].(string), "amount": "20.00", "date": "2026-03-02",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "contribution", tx["type"])

	_, acct = doJSON(t, srv, http.MethodGet, "/api/accounts/"+acct["id"].(string), "user-1", nil)
	require.Equal(t, "80.00", acct["balance"])
}

func TestAdminResetClearsData(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	_, acct := doJSON(t, srv, http.MethodPost, "/api/accounts", "user-1", map[string]any{
		"name": "Everyday", "account_type": "checking", "initial_balance": "10.00",
	})
	require.NotEmpty(t, acct["id"])

	resp, body := doJSON(t, srv, http.MethodPost, "/api/admin/reset", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "reset", body["status"])

	resp, body = doJSON(t, srv, http.MethodGet, "/api/accounts", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 0, body["count"])
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
