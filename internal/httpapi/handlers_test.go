package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"checkbook.org/internal/ids"
	"checkbook.org/internal/ledger"
	"checkbook.org/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	events := stream.New()
	engine := ledger.NewEngine(ledger.NewMemoryStore(), ids.NewULID(), ledger.WithEvents(events))
	api := New(ReadyProbe{}, "test", engine, events)
	api.SetLimits(1000, 1000, 1<<20)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any) *http.Response {
	return c.do(http.MethodPost, path, body)
}

func (c *apiClient) get(path string, params url.Values) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (c *apiClient) createAccount(checkbook, code, name, typ, opening string) string {
	c.t.Helper()
	resp := c.post("/v1/checkbooks/"+checkbook+"/accounts", map[string]any{
		"code":            code,
		"name":            name,
		"type":            typ,
		"opening_balance": opening,
	})
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("create account %s: unexpected status %d", name, resp.StatusCode)
	}
	acc := decode[map[string]any](c.t, resp)
	return acc["id"].(string)
}

func (c *apiClient) accountBalance(id string) float64 {
	c.t.Helper()
	resp := c.get("/v1/accounts/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("get account: unexpected status %d", resp.StatusCode)
	}
	acc := decode[map[string]any](c.t, resp)
	return acc["balance"].(float64)
}

func TestAPIPostingFlow(t *testing.T) {
	api := newTestAPI(t)

	checking := api.createAccount("cb1", "1000", "Checking", "asset", "500.00")
	groceries := api.createAccount("cb1", "5000", "Groceries", "expense", "")

	// Post a 200.00 debit from Checking to Groceries.
	resp := api.post("/v1/transactions", map[string]any{
		"checkbook_id":    "cb1",
		"type":            "debit",
		"date":            "2026-01-15",
		"from_account_id": checking,
		"to_account_id":   groceries,
		"amount":          "200.00",
		"description":     "weekly shop",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if resp.Header.Get("Location") == "" {
		t.Fatalf("expected Location header")
	}
	tx := decode[map[string]any](t, resp)
	txID := tx["id"].(string)
	if tx["amount"].(float64) != 20000 {
		t.Fatalf("unexpected stored amount: %v", tx["amount"])
	}

	if got := api.accountBalance(checking); got != -20000 {
		t.Fatalf("unexpected checking balance: %v", got)
	}
	if got := api.accountBalance(groceries); got != 20000 {
		t.Fatalf("unexpected groceries balance: %v", got)
	}

	// Stored balances must agree with a full replay.
	resp = api.get("/v1/checkbooks/cb1/consistency", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected consistency status: %d", resp.StatusCode)
	}
	check := decode[map[string]any](t, resp)
	if check["consistent"] != true {
		t.Fatalf("expected consistent checkbook, got %v", check)
	}

	// Delete restores both balances.
	resp = api.do(http.MethodDelete, "/v1/transactions/"+txID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected delete status: %d", resp.StatusCode)
	}
	if got := api.accountBalance(checking); got != 0 {
		t.Fatalf("expected checking restored to 0, got %v", got)
	}
	if got := api.accountBalance(groceries); got != 0 {
		t.Fatalf("expected groceries restored to 0, got %v", got)
	}
}

func TestAPIPatchTransaction(t *testing.T) {
	api := newTestAPI(t)

	checking := api.createAccount("cb1", "1000", "Checking", "asset", "")
	salary := api.createAccount("cb1", "4000", "Salary", "income", "")

	resp := api.post("/v1/transactions", map[string]any{
		"checkbook_id":    "cb1",
		"type":            "credit",
		"date":            "2026-02-01",
		"from_account_id": checking,
		"to_account_id":   salary,
		"amount":          "1500.00",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	tx := decode[map[string]any](t, resp)
	txID := tx["id"].(string)

	resp = api.do(http.MethodPatch, "/v1/transactions/"+txID, map[string]any{
		"amount": "1600.00",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected patch status: %d", resp.StatusCode)
	}
	updated := decode[map[string]any](t, resp)
	if updated["amount"].(float64) != 160000 {
		t.Fatalf("unexpected updated amount: %v", updated["amount"])
	}
	if got := api.accountBalance(checking); got != 160000 {
		t.Fatalf("unexpected checking balance after patch: %v", got)
	}
}

func TestAPIValidation(t *testing.T) {
	api := newTestAPI(t)

	// Zero amounts never post.
	resp := api.post("/v1/transactions", map[string]any{
		"checkbook_id":    "cb1",
		"type":            "debit",
		"date":            "2026-01-15",
		"from_account_id": "acc-x",
		"amount":          "0.00",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero amount, got %d", resp.StatusCode)
	}

	// Unknown account is a 404, not a silent post.
	resp = api.post("/v1/transactions", map[string]any{
		"checkbook_id":    "cb1",
		"type":            "debit",
		"date":            "2026-01-15",
		"from_account_id": "nope",
		"amount":          "10.00",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown account, got %d", resp.StatusCode)
	}
	errBody := decode[map[string]any](t, resp)
	if errBody["error"] == "" {
		t.Fatalf("expected error message")
	}
	if errBody["request_id"] == "" {
		t.Fatalf("expected request_id in error body")
	}
}

func TestAPIImportIdempotence(t *testing.T) {
	api := newTestAPI(t)

	checking := api.createAccount("cb1", "1000", "Checking", "asset", "")
	groceries := api.createAccount("cb1", "5000", "Groceries", "expense", "")

	payload := map[string]any{
		"rows": []map[string]any{
			{
				"type":            "debit",
				"date":            "2026-03-01",
				"from_account_id": checking,
				"to_account_id":   groceries,
				"amount":          "45.50",
				"reference":       "CHK 101",
			},
			{
				"type":            "debit",
				"date":            "2026-03-02",
				"from_account_id": checking,
				"to_account_id":   groceries,
				"amount":          "12.00",
				"reference":       "CHK 102",
			},
		},
	}

	resp := api.post("/v1/checkbooks/cb1/import", payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected import status: %d", resp.StatusCode)
	}
	first := decode[map[string]any](t, resp)
	if first["inserted"].(float64) != 2 {
		t.Fatalf("expected 2 inserted, got %v", first["inserted"])
	}

	// Same statement export again: everything is a duplicate.
	resp = api.post("/v1/checkbooks/cb1/import", payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected second import status: %d", resp.StatusCode)
	}
	second := decode[map[string]any](t, resp)
	if second["inserted"].(float64) != 0 {
		t.Fatalf("expected 0 inserted on re-import, got %v", second["inserted"])
	}
	if second["duplicates_skipped"].(float64) != 2 {
		t.Fatalf("expected 2 duplicates skipped, got %v", second["duplicates_skipped"])
	}

	if got := api.accountBalance(checking); got != -5750 {
		t.Fatalf("unexpected checking balance after re-import: %v", got)
	}
}

func TestAPIReconciliationRejectsUnbalanced(t *testing.T) {
	api := newTestAPI(t)

	checking := api.createAccount("cb1", "1000", "Checking", "asset", "1000.00")
	salary := api.createAccount("cb1", "4000", "Salary", "income", "")

	resp := api.post("/v1/transactions", map[string]any{
		"checkbook_id":    "cb1",
		"type":            "credit",
		"date":            "2026-01-10",
		"from_account_id": checking,
		"to_account_id":   salary,
		"amount":          "500.00",
	})
	tx := decode[map[string]any](t, resp)
	txID := tx["id"].(string)

	// Statement says 1500.01: off by one minor unit.
	resp = api.post("/v1/checkbooks/cb1/reconciliations", map[string]any{
		"account_id":              checking,
		"statement_date":          "2026-01-31",
		"statement_balance":       "1500.01",
		"cleared_transaction_ids": []string{txID},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for unbalanced reconciliation, got %d", resp.StatusCode)
	}
	if got := api.accountBalance(checking); got != 50000 {
		t.Fatalf("balance must be untouched by failed reconciliation, got %v", got)
	}

	// Correct statement balance completes and is listed in history.
	resp = api.post("/v1/checkbooks/cb1/reconciliations", map[string]any{
		"account_id":              checking,
		"statement_date":          "2026-01-31",
		"statement_balance":       "1500.00",
		"cleared_transaction_ids": []string{txID},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/accounts/"+checking+"/reconciliations", nil)
	history := decode[map[string]any](t, resp)
	items := history["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 reconciliation in history, got %d", len(items))
	}
}

func TestAPIReports(t *testing.T) {
	api := newTestAPI(t)

	checking := api.createAccount("cb1", "1000", "Checking", "asset", "100.00")
	salary := api.createAccount("cb1", "4000", "Salary", "income", "")
	groceries := api.createAccount("cb1", "5000", "Groceries", "expense", "")

	api.post("/v1/transactions", map[string]any{
		"checkbook_id": "cb1", "type": "credit", "date": "2026-01-05",
		"from_account_id": checking, "to_account_id": salary, "amount": "3000.00",
	}).Body.Close()
	api.post("/v1/transactions", map[string]any{
		"checkbook_id": "cb1", "type": "debit", "date": "2026-01-20",
		"from_account_id": checking, "to_account_id": groceries, "amount": "350.00",
	}).Body.Close()

	resp := api.get("/v1/checkbooks/cb1/reports/profit-loss", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected p&l status: %d", resp.StatusCode)
	}
	pl := decode[map[string]any](t, resp)
	if pl["total_income"].(float64) != 300000 {
		t.Fatalf("unexpected total income: %v", pl["total_income"])
	}
	if pl["net_income"].(float64) != 265000 {
		t.Fatalf("unexpected net income: %v", pl["net_income"])
	}

	resp = api.get("/v1/checkbooks/cb1/reports/balance-sheet", nil)
	bs := decode[map[string]any](t, resp)
	// Checking: 100.00 opening + 3000.00 - 350.00 activity.
	if bs["total_assets"].(float64) != 275000 {
		t.Fatalf("unexpected total assets: %v", bs["total_assets"])
	}

	resp = api.get("/v1/checkbooks/cb1/reports/chart-of-accounts", nil)
	chart := decode[map[string]any](t, resp)
	if len(chart["items"].([]any)) != 3 {
		t.Fatalf("expected 3 chart entries")
	}
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected healthz status: %d", resp.StatusCode)
	}
	health := decode[map[string]any](t, resp)
	if health["service"] != "checkbook-api" {
		t.Fatalf("unexpected service name: %v", health["service"])
	}

	resp = api.get("/readyz", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected readyz status: %d", resp.StatusCode)
	}
}
