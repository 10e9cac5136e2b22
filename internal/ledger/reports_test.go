package ledger

import (
	"context"
	"testing"
)

func seedReportingCheckbook(t *testing.T, eng *Engine) map[string]string {
	t.Helper()
	ctx := context.Background()
	ids := map[string]string{}

	create := func(name, code, parent string, at AccountType, opening int64) {
		id, err := eng.CreateAccount(ctx, AccountRequest{
			CheckbookID: "cb1", Name: name, Code: code, ParentCode: parent,
			Type: at, OpeningBalance: opening,
		})
		if err != nil {
			t.Fatal(err)
		}
		ids[name] = id
	}

	create("Checking", "1000", "", AccountAsset, 100000)
	create("Visa", "2000", "", AccountLiability, 0)
	create("Retained Earnings", "3000", "", AccountEquity, 0)
	create("Income", "4000", "", AccountIncome, 0)
	create("Consulting", "4010", "4000", AccountIncome, 0)
	create("Expenses", "5000", "", AccountExpense, 0)
	create("Groceries", "5010", "5000", AccountExpense, 0)

	post := func(tt TransactionType, d int, from, to string, amount int64) {
		req := TransactionRequest{
			CheckbookID: "cb1", Type: tt, Date: day(d),
			FromAccountID: ids[from], Amount: amount,
		}
		if to != "" {
			req.ToAccountID = ids[to]
		}
		if _, err := eng.CreateTransaction(ctx, req); err != nil {
			t.Fatal(err)
		}
	}

	post(TxCredit, 5, "Checking", "Consulting", 300000) // invoice paid
	post(TxDebit, 8, "Checking", "Groceries", 20000)
	post(TxDebit, 12, "Checking", "Groceries", 15000)
	post(TxCredit, 20, "Visa", "", 50000) // carry a card balance
	return ids
}

func TestProfitAndLossReplaysThroughCanonicalRule(t *testing.T) {
	eng, _ := newTestEngine()
	seedReportingCheckbook(t, eng)
	ctx := context.Background()

	report, err := eng.ProfitAndLoss(ctx, "cb1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalIncome != 300000 {
		t.Fatalf("total income = %d, want 300000", report.TotalIncome)
	}
	if report.TotalExpenses != 35000 {
		t.Fatalf("total expenses = %d, want 35000", report.TotalExpenses)
	}
	if report.NetIncome != 265000 {
		t.Fatalf("net income = %d, want 265000", report.NetIncome)
	}

	byName := map[string]AccountFigure{}
	for _, fig := range report.Figures {
		byName[fig.Name] = fig
	}
	if byName["Consulting"].Balance != 300000 {
		t.Fatalf("consulting = %d", byName["Consulting"].Balance)
	}
	if byName["Groceries"].Balance != 35000 {
		t.Fatalf("groceries = %d", byName["Groceries"].Balance)
	}
	if byName["Groceries"].ParentCode != "5000" {
		t.Fatalf("groceries parent code = %q", byName["Groceries"].ParentCode)
	}
}

func TestProfitAndLossDateRange(t *testing.T) {
	eng, _ := newTestEngine()
	seedReportingCheckbook(t, eng)
	ctx := context.Background()

	from, to := day(10), day(31)
	report, err := eng.ProfitAndLoss(ctx, "cb1", &from, &to)
	if err != nil {
		t.Fatal(err)
	}
	// Only the March 12 groceries run falls inside the window.
	if report.TotalIncome != 0 {
		t.Fatalf("total income = %d, want 0", report.TotalIncome)
	}
	if report.TotalExpenses != 15000 {
		t.Fatalf("total expenses = %d, want 15000", report.TotalExpenses)
	}
}

func TestBalanceSheetIncludesOpeningBalances(t *testing.T) {
	eng, _ := newTestEngine()
	seedReportingCheckbook(t, eng)
	ctx := context.Background()

	report, err := eng.BalanceSheet(ctx, "cb1")
	if err != nil {
		t.Fatal(err)
	}

	// Checking: 1000.00 opening + 3000.00 in - 200.00 - 150.00 out = 3650.00.
	byName := map[string]AccountFigure{}
	for _, fig := range report.Figures {
		byName[fig.Name] = fig
	}
	if byName["Checking"].Balance != 365000 {
		t.Fatalf("checking = %d, want 365000", byName["Checking"].Balance)
	}
	if byName["Visa"].Balance != 50000 {
		t.Fatalf("visa = %d, want 50000", byName["Visa"].Balance)
	}
	if report.TotalAssets != 365000 || report.TotalLiabilities != 50000 {
		t.Fatalf("totals: assets=%d liabilities=%d", report.TotalAssets, report.TotalLiabilities)
	}
	if report.NetWorth != 315000 {
		t.Fatalf("net worth = %d, want 315000", report.NetWorth)
	}
	for _, fig := range report.Figures {
		if fig.Type == AccountIncome || fig.Type == AccountExpense {
			t.Fatalf("income/expense account %s leaked into balance sheet", fig.Name)
		}
	}
}

func TestReportAgreesWithRecomputedBalances(t *testing.T) {
	eng, store := newTestEngine()
	seedReportingCheckbook(t, eng)
	ctx := context.Background()

	report, err := eng.ProfitAndLoss(ctx, "cb1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.RecomputeBalances(ctx, "cb1"); err != nil {
		t.Fatal(err)
	}
	for _, fig := range report.Figures {
		a, err := store.GetAccount(ctx, fig.AccountID)
		if err != nil {
			t.Fatal(err)
		}
		if a.Balance != fig.Balance {
			t.Fatalf("account %s: report %d != recomputed %d", fig.Name, fig.Balance, a.Balance)
		}
	}
}

func TestChartOfAccountsOrdersParentsBeforeChildren(t *testing.T) {
	eng, _ := newTestEngine()
	seedReportingCheckbook(t, eng)
	ctx := context.Background()

	entries, err := eng.ChartOfAccounts(ctx, "cb1")
	if err != nil {
		t.Fatal(err)
	}
	pos := map[string]int{}
	for i, e := range entries {
		pos[e.Account.Name] = i
	}
	if pos["Income"] > pos["Consulting"] {
		t.Fatal("parent Income listed after child Consulting")
	}
	if pos["Expenses"] > pos["Groceries"] {
		t.Fatal("parent Expenses listed after child Groceries")
	}
	for _, e := range entries {
		if e.Account.Name == "Checking" && e.DisplayedBalance != 365000 {
			t.Fatalf("checking displayed balance = %d, want 365000", e.DisplayedBalance)
		}
	}
}

func TestAccountCacheInvalidatedByPostings(t *testing.T) {
	eng, _ := newTestEngine()
	ids := seedReportingCheckbook(t, eng)
	ctx := context.Background()

	// Warm the cache.
	before, err := eng.Accounts(ctx, "cb1")
	if err != nil {
		t.Fatal(err)
	}
	var cachedChecking int64
	for _, a := range before {
		if a.Name == "Checking" {
			cachedChecking = a.Balance
		}
	}

	if _, err := eng.CreateTransaction(ctx, TransactionRequest{
		CheckbookID: "cb1", Type: TxDebit, Date: day(25),
		FromAccountID: ids["Checking"], Amount: 1000,
	}); err != nil {
		t.Fatal(err)
	}

	after, err := eng.Accounts(ctx, "cb1")
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range after {
		if a.Name == "Checking" && a.Balance != cachedChecking-1000 {
			t.Fatalf("cache served stale balance %d, want %d", a.Balance, cachedChecking-1000)
		}
	}
}
