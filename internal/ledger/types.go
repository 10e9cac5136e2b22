package ledger

import (
	"errors"
	"time"
)

// Amounts are represented in minor units (e.g., cents). No floats.

// AccountType classifies accounts in the chart of accounts.
type AccountType string

const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
	AccountEquity    AccountType = "equity"
	AccountIncome    AccountType = "income"
	AccountExpense   AccountType = "expense"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountAsset, AccountLiability, AccountEquity, AccountIncome, AccountExpense:
		return true
	}
	return false
}

// TransactionType is the recorded movement kind. Sign and direction are
// always derived from it, never persisted.
type TransactionType string

const (
	TxDebit  TransactionType = "debit"
	TxCredit TransactionType = "credit"
)

func (t TransactionType) Valid() bool {
	return t == TxDebit || t == TxCredit
}

// Account is a named ledger account within a checkbook. Balance holds the
// cumulative transaction activity only; OpeningBalance is fixed at creation
// and added at display time.
type Account struct {
	ID             string      `json:"id"`
	CheckbookID    string      `json:"checkbook_id"`
	Code           string      `json:"code,omitempty"`
	ParentCode     string      `json:"parent_code,omitempty"`
	Name           string      `json:"name"`
	Type           AccountType `json:"type"`
	OpeningBalance int64       `json:"opening_balance"`
	Balance        int64       `json:"balance"`
	Active         bool        `json:"active"`
	CreatedAt      time.Time   `json:"created_at"`
}

// DisplayedBalance is what screens and statements show.
func (a Account) DisplayedBalance() int64 {
	return a.OpeningBalance + a.Balance
}

// Transaction posts to FromAccountID always, and to ToAccountID only when
// present. Amount is always stored unsigned (> 0).
type Transaction struct {
	ID            string          `json:"id"`
	CheckbookID   string          `json:"checkbook_id"`
	Type          TransactionType `json:"type"`
	Date          time.Time       `json:"date"`
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id,omitempty"`
	Amount        int64           `json:"amount"`
	Reference     string          `json:"reference,omitempty"`
	Description   string          `json:"description,omitempty"`
	Reconciled    bool            `json:"reconciled"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Reconciliation is an append-only statement checkpoint. Rows are never
// updated once written.
type Reconciliation struct {
	ID                string    `json:"id"`
	CheckbookID       string    `json:"checkbook_id"`
	AccountID         string    `json:"account_id"`
	StatementDate     time.Time `json:"statement_date"`
	StatementBalance  int64     `json:"statement_balance"`
	ReconciledBalance int64     `json:"reconciled_balance"`
	Difference        int64     `json:"difference"`
	CreatedAt         time.Time `json:"created_at"`
}

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrInvalidAmount = errors.New("invalid amount (must be > 0)")
	ErrConsistency   = errors.New("stored balance disagrees with recomputed balance")
	ErrUnbalanced    = errors.New("reconciliation does not balance")
	ErrInactive      = errors.New("account is inactive")
)
