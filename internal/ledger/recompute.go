package ledger

import (
	"context"
	"fmt"

	"checkbook.org/internal/stream"
)

// RecomputeResult is one account's repair outcome: the stored balance before,
// the balance replayed from history, and how far apart they were.
type RecomputeResult struct {
	AccountID  string `json:"account_id"`
	Name       string `json:"name"`
	Previous   int64  `json:"previous"`
	Recomputed int64  `json:"recomputed"`
	Drift      int64  `json:"drift"`
}

// RecomputeBalances rebuilds every active account's stored balance from its
// full transaction history through the canonical rule table. It is the
// repair tool and the ground truth the incremental path is tested against.
func (e *Engine) RecomputeBalances(ctx context.Context, checkbookID string) ([]RecomputeResult, error) {
	unlock := e.lockCheckbook(checkbookID)
	defer unlock()

	var results []RecomputeResult
	err := e.atomically(ctx, func(s Store) error {
		accounts, err := s.AccountsByCheckbook(ctx, checkbookID)
		if err != nil {
			return fmt.Errorf("load accounts: %w", err)
		}
		for _, a := range accounts {
			if !a.Active {
				continue
			}
			fresh, err := replayBalance(ctx, s, a)
			if err != nil {
				return err
			}
			if err := s.SetBalance(ctx, a.ID, fresh); err != nil {
				return fmt.Errorf("set balance for account %s: %w", a.ID, err)
			}
			results = append(results, RecomputeResult{
				AccountID:  a.ID,
				Name:       a.Name,
				Previous:   a.Balance,
				Recomputed: fresh,
				Drift:      a.Balance - fresh,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.afterPosting(stream.PostingEvent{
		Kind:        stream.KindRecompute,
		CheckbookID: checkbookID,
		Timestamp:   e.now(),
	})
	return results, nil
}

// CheckConsistency compares every active account's stored balance with a
// fresh replay without writing anything. It returns the per-account report
// and, when any account drifts by a minor unit or more, an error wrapping
// ErrConsistency so the drift is detectable by a standalone check.
func (e *Engine) CheckConsistency(ctx context.Context, checkbookID string) ([]RecomputeResult, error) {
	accounts, err := e.store.AccountsByCheckbook(ctx, checkbookID)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	var (
		results []RecomputeResult
		drifted int
	)
	for _, a := range accounts {
		if !a.Active {
			continue
		}
		fresh, err := replayBalance(ctx, e.store, a)
		if err != nil {
			return nil, err
		}
		r := RecomputeResult{
			AccountID:  a.ID,
			Name:       a.Name,
			Previous:   a.Balance,
			Recomputed: fresh,
			Drift:      a.Balance - fresh,
		}
		if r.Drift != 0 {
			drifted++
		}
		results = append(results, r)
	}
	if drifted > 0 {
		return results, fmt.Errorf("%w: %d account(s) drifted in checkbook %s", ErrConsistency, drifted, checkbookID)
	}
	return results, nil
}

// replayBalance sums the account's full history through Delta. Opening
// balance is excluded here and added only at display time.
func replayBalance(ctx context.Context, s Store, a Account) (int64, error) {
	txs, err := s.TransactionsByAccount(ctx, a.ID)
	if err != nil {
		return 0, fmt.Errorf("load transactions for account %s: %w", a.ID, err)
	}
	var balance int64
	for _, tx := range txs {
		if tx.FromAccountID == a.ID {
			balance += Delta(a.Type, tx.Type, RoleFrom, tx.Amount)
		}
		if tx.ToAccountID == a.ID {
			balance += Delta(a.Type, tx.Type, RoleTo, tx.Amount)
		}
	}
	return balance, nil
}
