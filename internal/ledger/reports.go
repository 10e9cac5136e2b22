package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// AccountFigure is one account's contribution to a report. Balance is the
// replayed figure for the report's scope, not the stored running balance.
type AccountFigure struct {
	AccountID  string      `json:"account_id"`
	Code       string      `json:"code,omitempty"`
	ParentCode string      `json:"parent_code,omitempty"`
	Name       string      `json:"name"`
	Type       AccountType `json:"type"`
	Balance    int64       `json:"balance"`
}

// ProfitAndLossReport groups period income and expense activity.
type ProfitAndLossReport struct {
	Figures       []AccountFigure `json:"figures"`
	TotalIncome   int64           `json:"total_income"`
	TotalExpenses int64           `json:"total_expenses"`
	NetIncome     int64           `json:"net_income"`
}

// BalanceSheetReport summarizes asset, liability and equity positions.
// Figures here include opening balances: a balance sheet is a statement of
// position, not of period activity.
type BalanceSheetReport struct {
	Figures          []AccountFigure `json:"figures"`
	TotalAssets      int64           `json:"total_assets"`
	TotalLiabilities int64           `json:"total_liabilities"`
	TotalEquity      int64           `json:"total_equity"`
	NetWorth         int64           `json:"net_worth"`
}

// ChartEntry is one row of the chart-of-accounts report: an account plus its
// displayed balance, ordered parent before children.
type ChartEntry struct {
	Account          Account `json:"account"`
	DisplayedBalance int64   `json:"displayed_balance"`
}

// ProfitAndLoss replays income and expense accounts through the canonical
// rule table, optionally restricted to a date range. It never reads stored
// balances, so comparing it against them is a meaningful consistency check.
func (e *Engine) ProfitAndLoss(ctx context.Context, checkbookID string, from, to *time.Time) (ProfitAndLossReport, error) {
	accounts, err := e.cache.get(ctx, e.store, checkbookID)
	if err != nil {
		return ProfitAndLossReport{}, err
	}

	txs, err := e.reportTransactions(ctx, checkbookID, from, to)
	if err != nil {
		return ProfitAndLossReport{}, err
	}

	var report ProfitAndLossReport
	for _, a := range accounts {
		if !a.Active || (a.Type != AccountIncome && a.Type != AccountExpense) {
			continue
		}
		fig := AccountFigure{
			AccountID:  a.ID,
			Code:       a.Code,
			ParentCode: a.ParentCode,
			Name:       a.Name,
			Type:       a.Type,
			Balance:    replayFiltered(a, txs),
		}
		report.Figures = append(report.Figures, fig)
		if a.Type == AccountIncome {
			report.TotalIncome += fig.Balance
		} else {
			report.TotalExpenses += fig.Balance
		}
	}
	report.NetIncome = report.TotalIncome - report.TotalExpenses
	sortFigures(report.Figures)
	return report, nil
}

// BalanceSheet replays asset, liability and equity accounts over the full
// history and adds opening balances.
func (e *Engine) BalanceSheet(ctx context.Context, checkbookID string) (BalanceSheetReport, error) {
	accounts, err := e.cache.get(ctx, e.store, checkbookID)
	if err != nil {
		return BalanceSheetReport{}, err
	}

	txs, err := e.reportTransactions(ctx, checkbookID, nil, nil)
	if err != nil {
		return BalanceSheetReport{}, err
	}

	var report BalanceSheetReport
	for _, a := range accounts {
		if !a.Active {
			continue
		}
		switch a.Type {
		case AccountAsset, AccountLiability, AccountEquity:
		default:
			continue
		}
		fig := AccountFigure{
			AccountID:  a.ID,
			Code:       a.Code,
			ParentCode: a.ParentCode,
			Name:       a.Name,
			Type:       a.Type,
			Balance:    a.OpeningBalance + replayFiltered(a, txs),
		}
		report.Figures = append(report.Figures, fig)
		switch a.Type {
		case AccountAsset:
			report.TotalAssets += fig.Balance
		case AccountLiability:
			report.TotalLiabilities += fig.Balance
		case AccountEquity:
			report.TotalEquity += fig.Balance
		}
	}
	report.NetWorth = report.TotalAssets - report.TotalLiabilities + report.TotalEquity
	sortFigures(report.Figures)
	return report, nil
}

// ChartOfAccounts lists every active account with its displayed balance,
// parents before their children, then by code.
func (e *Engine) ChartOfAccounts(ctx context.Context, checkbookID string) ([]ChartEntry, error) {
	accounts, err := e.cache.get(ctx, e.store, checkbookID)
	if err != nil {
		return nil, err
	}

	entries := make([]ChartEntry, 0, len(accounts))
	for _, a := range accounts {
		if !a.Active {
			continue
		}
		entries = append(entries, ChartEntry{Account: a, DisplayedBalance: a.DisplayedBalance()})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		gi, gj := groupCode(entries[i].Account), groupCode(entries[j].Account)
		if gi != gj {
			return gi < gj
		}
		// Parent rows first within a group.
		pi, pj := entries[i].Account.ParentCode == "", entries[j].Account.ParentCode == ""
		if pi != pj {
			return pi
		}
		return entries[i].Account.Code < entries[j].Account.Code
	})
	return entries, nil
}

func groupCode(a Account) string {
	if a.ParentCode != "" {
		return a.ParentCode
	}
	return a.Code
}

func (e *Engine) reportTransactions(ctx context.Context, checkbookID string, from, to *time.Time) ([]Transaction, error) {
	if from != nil || to != nil {
		lo, hi := time.Time{}, time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
		if from != nil {
			lo = *from
		}
		if to != nil {
			hi = *to
		}
		txs, err := e.store.TransactionsByDateRange(ctx, checkbookID, lo, hi)
		if err != nil {
			return nil, fmt.Errorf("load transactions in range: %w", err)
		}
		return txs, nil
	}
	txs, err := e.store.TransactionsByCheckbook(ctx, checkbookID, 0)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return txs, nil
}

func replayFiltered(a Account, txs []Transaction) int64 {
	var balance int64
	for _, tx := range txs {
		if tx.FromAccountID == a.ID {
			balance += Delta(a.Type, tx.Type, RoleFrom, tx.Amount)
		}
		if tx.ToAccountID == a.ID {
			balance += Delta(a.Type, tx.Type, RoleTo, tx.Amount)
		}
	}
	return balance
}

func sortFigures(figs []AccountFigure) {
	sort.Slice(figs, func(i, j int) bool {
		if figs[i].Code != figs[j].Code {
			return figs[i].Code < figs[j].Code
		}
		return figs[i].Name < figs[j].Name
	})
}
