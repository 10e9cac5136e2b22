package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ReconcileTransaction marks a single transaction cleared. No balance effect.
func (e *Engine) ReconcileTransaction(ctx context.Context, id string) error {
	n, err := e.store.SetReconciled(ctx, []string{id}, true)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// BulkReconcile marks a set of transactions cleared and returns how many
// rows it touched. Unknown ids are skipped, matching the bulk semantics of
// statement imports.
func (e *Engine) BulkReconcile(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return e.store.SetReconciled(ctx, ids, true)
}

// ReconciliationRequest is the input schema for completing a reconciliation
// session. The difference is NOT an input: the engine recomputes it from
// the cleared transactions and refuses to complete an unbalanced session.
type ReconciliationRequest struct {
	CheckbookID           string
	AccountID             string
	StatementDate         time.Time
	StatementBalance      int64
	ClearedTransactionIDs []string
}

func (r ReconciliationRequest) Validate() error {
	var missing []string
	if r.CheckbookID == "" {
		missing = append(missing, "checkbook_id")
	}
	if r.AccountID == "" {
		missing = append(missing, "account_id")
	}
	if r.StatementDate.IsZero() {
		missing = append(missing, "statement_date")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// CreateReconciliation verifies that the last statement balance plus cleared
// credits minus cleared debits lands exactly on the new statement balance,
// marks the listed transactions cleared and appends the checkpoint record.
// With integer minor units "within 0.01" means an exact match.
func (e *Engine) CreateReconciliation(ctx context.Context, req ReconciliationRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	unlock := e.lockCheckbook(req.CheckbookID)
	defer unlock()

	rec := Reconciliation{
		ID:               e.ids.New(),
		CheckbookID:      req.CheckbookID,
		AccountID:        req.AccountID,
		StatementDate:    req.StatementDate,
		StatementBalance: req.StatementBalance,
		CreatedAt:        e.now(),
	}

	err := e.atomically(ctx, func(s Store) error {
		account, err := s.GetAccount(ctx, req.AccountID)
		if err != nil {
			return fmt.Errorf("account %s: %w", req.AccountID, err)
		}

		last, err := e.lastStatementBalance(ctx, s, account)
		if err != nil {
			return err
		}

		var credits, debits int64
		for _, id := range req.ClearedTransactionIDs {
			tx, err := s.GetTransaction(ctx, id)
			if err != nil {
				return fmt.Errorf("cleared transaction %s: %w", id, err)
			}
			if tx.Type == TxCredit {
				credits += tx.Amount
			} else {
				debits += tx.Amount
			}
		}

		reconciled := last + credits - debits
		if reconciled != req.StatementBalance {
			return fmt.Errorf("%w: expected statement balance %d, got %d", ErrUnbalanced, reconciled, req.StatementBalance)
		}
		rec.ReconciledBalance = reconciled
		rec.Difference = req.StatementBalance - reconciled

		if len(req.ClearedTransactionIDs) > 0 {
			if _, err := s.SetReconciled(ctx, req.ClearedTransactionIDs, true); err != nil {
				return fmt.Errorf("mark cleared: %w", err)
			}
		}
		return s.InsertReconciliation(ctx, rec)
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// ReconciliationHistory lists an account's checkpoints, most recent
// statement first.
func (e *Engine) ReconciliationHistory(ctx context.Context, accountID string) ([]Reconciliation, error) {
	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return e.store.ReconciliationsByAccount(ctx, accountID)
}

// lastStatementBalance is the most recent checkpoint's statement balance.
// The first reconciliation of an account starts from its opening balance.
func (e *Engine) lastStatementBalance(ctx context.Context, s Store, account Account) (int64, error) {
	recs, err := s.ReconciliationsByAccount(ctx, account.ID)
	if err != nil {
		return 0, fmt.Errorf("reconciliation history for account %s: %w", account.ID, err)
	}
	if len(recs) == 0 {
		return account.OpeningBalance, nil
	}
	return recs[0].StatementBalance, nil
}
