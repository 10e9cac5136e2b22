package ledger

import (
	"context"
	"time"
)

// AccountStore is the account read/write contract the engine needs.
// ApplyDelta must be an atomic increment at the storage layer.
type AccountStore interface {
	InsertAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, id string) (Account, error)
	GetAccounts(ctx context.Context, ids []string) (map[string]Account, error)
	AccountsByCheckbook(ctx context.Context, checkbookID string) ([]Account, error)
	ApplyDelta(ctx context.Context, id string, delta int64) error
	SetBalance(ctx context.Context, id string, balance int64) error
	SetActive(ctx context.Context, id string, active bool) error
}

// TransactionStore persists transaction rows. UpdateTransaction replaces the
// whole row; the engine merges patches before calling it.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx Transaction) error
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	UpdateTransaction(ctx context.Context, tx Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	SetReconciled(ctx context.Context, ids []string, reconciled bool) (int, error)
	// TransactionsByCheckbook returns newest-first; limit <= 0 means all.
	TransactionsByCheckbook(ctx context.Context, checkbookID string, limit int) ([]Transaction, error)
	TransactionsByAccount(ctx context.Context, accountID string) ([]Transaction, error)
	TransactionsByDateRange(ctx context.Context, checkbookID string, from, to time.Time) ([]Transaction, error)
}

// ReconciliationStore appends statement checkpoints and lists them by
// statement date descending.
type ReconciliationStore interface {
	InsertReconciliation(ctx context.Context, rec Reconciliation) error
	ReconciliationsByAccount(ctx context.Context, accountID string) ([]Reconciliation, error)
}

// Store is the full persistence surface the engine is wired against.
type Store interface {
	AccountStore
	TransactionStore
	ReconciliationStore
}

// TxRunner is implemented by stores that can scope a function to a single
// all-or-nothing unit. fn receives a Store bound to that unit; any error
// rolls the whole unit back.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(Store) error) error
}
