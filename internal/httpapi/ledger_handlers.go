package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"checkbook.org/internal/ledger"
	"checkbook.org/internal/money"
	"checkbook.org/internal/obs"
)

// Amounts cross the wire as decimal strings ("200.00"); internally everything
// is integer minor units.

type createTransactionRequest struct {
	CheckbookID   string `json:"checkbook_id"`
	Type          string `json:"type"`
	Date          string `json:"date"`
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        string `json:"amount"`
	Reference     string `json:"reference"`
	Description   string `json:"description"`
}

type patchTransactionRequest struct {
	Type          *string `json:"type"`
	Date          *string `json:"date"`
	FromAccountID *string `json:"from_account_id"`
	ToAccountID   *string `json:"to_account_id"`
	Amount        *string `json:"amount"`
	Reference     *string `json:"reference"`
	Description   *string `json:"description"`
}

type importRowRequest struct {
	Type          string `json:"type"`
	Date          string `json:"date"`
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        string `json:"amount"`
	Reference     string `json:"reference"`
	Description   string `json:"description"`
}

type importRequest struct {
	Rows []importRowRequest `json:"rows"`
}

type bulkReconcileRequest struct {
	TransactionIDs []string `json:"transaction_ids"`
}

type createReconciliationRequest struct {
	AccountID             string   `json:"account_id"`
	StatementDate         string   `json:"statement_date"`
	StatementBalance      string   `json:"statement_balance"`
	ClearedTransactionIDs []string `json:"cleared_transaction_ids"`
}

type createAccountRequest struct {
	Code           string `json:"code"`
	ParentCode     string `json:"parent_code"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	OpeningBalance string `json:"opening_balance"`
}

func (a *API) handleTransactionsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createTransaction(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleTransactionResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/transactions/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if path == "reconcile" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.bulkReconcile(w, r)
		return
	}

	if id, ok := strings.CutSuffix(path, "/reconcile"); ok {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.reconcileTransaction(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getTransaction(w, r, path)
	case http.MethodPatch:
		a.patchTransaction(w, r, path)
	case http.MethodDelete:
		a.deleteTransaction(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleCheckbookResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/checkbooks/")
	checkbookID, rest, ok := strings.Cut(path, "/")
	if !ok || checkbookID == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch {
	case rest == "import" && r.Method == http.MethodPost:
		a.bulkImport(w, r, checkbookID)
	case rest == "reconciliations" && r.Method == http.MethodPost:
		a.createReconciliation(w, r, checkbookID)
	case rest == "recompute" && r.Method == http.MethodPost:
		a.recompute(w, r, checkbookID)
	case rest == "consistency" && r.Method == http.MethodGet:
		a.consistency(w, r, checkbookID)
	case rest == "transactions" && r.Method == http.MethodGet:
		a.recentTransactions(w, r, checkbookID)
	case rest == "accounts" && r.Method == http.MethodPost:
		a.createAccount(w, r, checkbookID)
	case rest == "accounts" && r.Method == http.MethodGet:
		a.listAccounts(w, r, checkbookID)
	case strings.HasPrefix(rest, "accounts/") && strings.HasSuffix(rest, "/deactivate") && r.Method == http.MethodPost:
		accountID := strings.TrimSuffix(strings.TrimPrefix(rest, "accounts/"), "/deactivate")
		a.deactivateAccount(w, r, accountID)
	case rest == "reports/profit-loss" && r.Method == http.MethodGet:
		a.profitAndLoss(w, r, checkbookID)
	case rest == "reports/balance-sheet" && r.Method == http.MethodGet:
		a.balanceSheet(w, r, checkbookID)
	case rest == "reports/chart-of-accounts" && r.Method == http.MethodGet:
		a.chartOfAccounts(w, r, checkbookID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/transactions"); ok {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.accountRegister(w, r, id)
		return
	}
	if id, ok := strings.CutSuffix(path, "/reconciliations"); ok {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.reconciliationHistory(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getAccount(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

// --- transactions ---

func (a *API) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	lreq, err := transactionRequestFromWire(req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id, err := a.engine.CreateTransaction(r.Context(), lreq)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	obs.ObservePosting("create", string(lreq.Type))
	a.audit(r.Context(), "transaction.create", map[string]any{
		"transaction_id": id,
		"checkbook_id":   lreq.CheckbookID,
		"type":           string(lreq.Type),
		"amount":         money.Format(lreq.Amount),
	})

	tx, err := a.engine.GetTransaction(r.Context(), id)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/transactions/"+id)
	writeJSON(w, http.StatusCreated, tx)
}

func (a *API) getTransaction(w http.ResponseWriter, r *http.Request, id string) {
	tx, err := a.engine.GetTransaction(r.Context(), id)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) patchTransaction(w http.ResponseWriter, r *http.Request, id string) {
	var req patchTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	patch, err := patchFromWire(req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.engine.UpdateTransaction(r.Context(), id, patch); err != nil {
		handleLedgerError(w, r, err)
		return
	}
	txType := ""
	if patch.Type != nil {
		txType = string(*patch.Type)
	}
	obs.ObservePosting("update", txType)
	a.audit(r.Context(), "transaction.update", map[string]any{
		"transaction_id": id,
	})

	tx, err := a.engine.GetTransaction(r.Context(), id)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) deleteTransaction(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.engine.DeleteTransaction(r.Context(), id); err != nil {
		handleLedgerError(w, r, err)
		return
	}
	obs.ObservePosting("delete", "")
	a.audit(r.Context(), "transaction.delete", map[string]any{
		"transaction_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) recentTransactions(w http.ResponseWriter, r *http.Request, checkbookID string) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), 50, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.engine.RecentTransactions(r.Context(), checkbookID, limit)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"as_of": time.Now().UTC(),
	})
}

// --- reconciliation ---

func (a *API) reconcileTransaction(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.engine.ReconcileTransaction(r.Context(), id); err != nil {
		handleLedgerError(w, r, err)
		return
	}
	a.audit(r.Context(), "transaction.reconcile", map[string]any{
		"transaction_id": id,
	})
	writeJSON(w, http.StatusOK, map[string]any{"reconciled": 1})
}

func (a *API) bulkReconcile(w http.ResponseWriter, r *http.Request) {
	var req bulkReconcileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.TransactionIDs) == 0 {
		writeError(w, r, http.StatusBadRequest, "transaction_ids is required")
		return
	}
	n, err := a.engine.BulkReconcile(r.Context(), req.TransactionIDs)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	a.audit(r.Context(), "transaction.reconcile_bulk", map[string]any{
		"requested":  len(req.TransactionIDs),
		"reconciled": n,
	})
	writeJSON(w, http.StatusOK, map[string]any{"reconciled": n})
}

func (a *API) createReconciliation(w http.ResponseWriter, r *http.Request, checkbookID string) {
	var req createReconciliationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	stmtDate, err := parseDate(req.StatementDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "statement_date: "+err.Error())
		return
	}
	stmtBalance, err := money.Parse(req.StatementBalance)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "statement_balance: "+err.Error())
		return
	}

	id, err := a.engine.CreateReconciliation(r.Context(), ledger.ReconciliationRequest{
		CheckbookID:           checkbookID,
		AccountID:             req.AccountID,
		StatementDate:         stmtDate,
		StatementBalance:      stmtBalance,
		ClearedTransactionIDs: req.ClearedTransactionIDs,
	})
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	a.audit(r.Context(), "reconciliation.create", map[string]any{
		"reconciliation_id": id,
		"account_id":        req.AccountID,
		"statement_balance": money.Format(stmtBalance),
		"cleared":           len(req.ClearedTransactionIDs),
	})
	w.Header().Set("Location", "/v1/accounts/"+req.AccountID+"/reconciliations")
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (a *API) reconciliationHistory(w http.ResponseWriter, r *http.Request, accountID string) {
	items, err := a.engine.ReconciliationHistory(r.Context(), accountID)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// --- import / recompute ---

func (a *API) bulkImport(w http.ResponseWriter, r *http.Request, checkbookID string) {
	var req importRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, r, http.StatusBadRequest, "rows is required")
		return
	}

	rows := make([]ledger.ImportRow, 0, len(req.Rows))
	for i, wire := range req.Rows {
		row, err := importRowFromWire(wire)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("row %d: %v", i, err))
			return
		}
		rows = append(rows, row)
	}

	result, err := a.engine.BulkImport(r.Context(), checkbookID, rows)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	obs.ObserveImport(result.Inserted, result.DuplicatesSkipped)
	a.audit(r.Context(), "import.bulk", map[string]any{
		"checkbook_id":       checkbookID,
		"inserted":           result.Inserted,
		"duplicates_skipped": result.DuplicatesSkipped,
	})
	writeJSON(w, http.StatusOK, result)
}

func (a *API) recompute(w http.ResponseWriter, r *http.Request, checkbookID string) {
	results, err := a.engine.RecomputeBalances(r.Context(), checkbookID)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	for _, res := range results {
		obs.ObserveRecomputeDrift(checkbookID, res.Drift)
	}
	a.audit(r.Context(), "balance.recompute", map[string]any{
		"checkbook_id": checkbookID,
		"accounts":     len(results),
	})
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (a *API) consistency(w http.ResponseWriter, r *http.Request, checkbookID string) {
	results, err := a.engine.CheckConsistency(r.Context(), checkbookID)
	if err != nil && !errors.Is(err, ledger.ErrConsistency) {
		handleLedgerError(w, r, err)
		return
	}
	consistent := err == nil
	code := http.StatusOK
	if !consistent {
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]any{
		"consistent": consistent,
		"results":    results,
	})
}

// --- accounts ---

func (a *API) createAccount(w http.ResponseWriter, r *http.Request, checkbookID string) {
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var opening int64
	if strings.TrimSpace(req.OpeningBalance) != "" {
		v, err := money.Parse(req.OpeningBalance)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "opening_balance: "+err.Error())
			return
		}
		opening = v
	}

	id, err := a.engine.CreateAccount(r.Context(), ledger.AccountRequest{
		CheckbookID:    checkbookID,
		Code:           strings.TrimSpace(req.Code),
		ParentCode:     strings.TrimSpace(req.ParentCode),
		Name:           strings.TrimSpace(req.Name),
		Type:           ledger.AccountType(req.Type),
		OpeningBalance: opening,
	})
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	a.audit(r.Context(), "account.create", map[string]any{
		"account_id":   id,
		"checkbook_id": checkbookID,
		"type":         req.Type,
	})

	acc, err := a.engine.GetAccount(r.Context(), id)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/accounts/"+id)
	writeJSON(w, http.StatusCreated, acc)
}

func (a *API) listAccounts(w http.ResponseWriter, r *http.Request, checkbookID string) {
	items, err := a.engine.Accounts(r.Context(), checkbookID)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) getAccount(w http.ResponseWriter, r *http.Request, id string) {
	acc, err := a.engine.GetAccount(r.Context(), id)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) deactivateAccount(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.engine.DeactivateAccount(r.Context(), id); err != nil {
		handleLedgerError(w, r, err)
		return
	}
	a.audit(r.Context(), "account.deactivate", map[string]any{
		"account_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) accountRegister(w http.ResponseWriter, r *http.Request, accountID string) {
	items, err := a.engine.AccountRegister(r.Context(), accountID)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// --- reports ---

func (a *API) profitAndLoss(w http.ResponseWriter, r *http.Request, checkbookID string) {
	var from, to *time.Time
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "start_date: "+err.Error())
			return
		}
		from = &d
	}
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "end_date: "+err.Error())
			return
		}
		to = &d
	}

	report, err := a.engine.ProfitAndLoss(r.Context(), checkbookID, from, to)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) balanceSheet(w http.ResponseWriter, r *http.Request, checkbookID string) {
	report, err := a.engine.BalanceSheet(r.Context(), checkbookID)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) chartOfAccounts(w http.ResponseWriter, r *http.Request, checkbookID string) {
	entries, err := a.engine.ChartOfAccounts(r.Context(), checkbookID)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

// --- wire conversion ---

func transactionRequestFromWire(req createTransactionRequest) (ledger.TransactionRequest, error) {
	out := ledger.TransactionRequest{
		CheckbookID:   strings.TrimSpace(req.CheckbookID),
		Type:          ledger.TransactionType(req.Type),
		FromAccountID: strings.TrimSpace(req.FromAccountID),
		ToAccountID:   strings.TrimSpace(req.ToAccountID),
		Reference:     req.Reference,
		Description:   req.Description,
	}
	if strings.TrimSpace(req.Date) != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			return ledger.TransactionRequest{}, fmt.Errorf("date: %w", err)
		}
		out.Date = d
	}
	if strings.TrimSpace(req.Amount) != "" {
		amt, err := money.ParsePositive(req.Amount)
		if err != nil {
			return ledger.TransactionRequest{}, fmt.Errorf("amount: %w", err)
		}
		out.Amount = amt
	}
	return out, nil
}

func patchFromWire(req patchTransactionRequest) (ledger.TransactionPatch, error) {
	var patch ledger.TransactionPatch
	if req.Type != nil {
		t := ledger.TransactionType(*req.Type)
		patch.Type = &t
	}
	if req.Date != nil {
		d, err := parseDate(*req.Date)
		if err != nil {
			return ledger.TransactionPatch{}, fmt.Errorf("date: %w", err)
		}
		patch.Date = &d
	}
	patch.FromAccountID = req.FromAccountID
	patch.ToAccountID = req.ToAccountID
	if req.Amount != nil {
		amt, err := money.ParsePositive(*req.Amount)
		if err != nil {
			return ledger.TransactionPatch{}, fmt.Errorf("amount: %w", err)
		}
		patch.Amount = &amt
	}
	patch.Reference = req.Reference
	patch.Description = req.Description
	return patch, nil
}

func importRowFromWire(wire importRowRequest) (ledger.ImportRow, error) {
	date, err := parseDate(wire.Date)
	if err != nil {
		return ledger.ImportRow{}, fmt.Errorf("date: %w", err)
	}
	amt, err := money.ParsePositive(wire.Amount)
	if err != nil {
		return ledger.ImportRow{}, fmt.Errorf("amount: %w", err)
	}
	return ledger.ImportRow{
		Type:          ledger.TransactionType(wire.Type),
		Date:          date,
		FromAccountID: strings.TrimSpace(wire.FromAccountID),
		ToAccountID:   strings.TrimSpace(wire.ToAccountID),
		Amount:        amt,
		Reference:     wire.Reference,
		Description:   wire.Description,
	}, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("date is required")
	}
	if d, err := time.Parse("2006-01-02", raw); err == nil {
		return d.UTC(), nil
	}
	if d, err := time.Parse(time.RFC3339, raw); err == nil {
		return d.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q (want YYYY-MM-DD or RFC3339)", raw)
}

func parseLimit(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, fmt.Errorf("limit must be between %d and %d", min, max)
	}
	return val, nil
}
