package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process concurrency safety.
// It backs tests and single-node deployments without Postgres.
type MemoryStore struct {
	mu    sync.RWMutex
	state memState
}

type memState struct {
	accounts map[string]*Account
	txs      map[string]*Transaction
	recs     []Reconciliation
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memState{
		accounts: make(map[string]*Account),
		txs:      make(map[string]*Transaction),
	}}
}

func (s *memState) clone() memState {
	out := memState{
		accounts: make(map[string]*Account, len(s.accounts)),
		txs:      make(map[string]*Transaction, len(s.txs)),
		recs:     append([]Reconciliation(nil), s.recs...),
	}
	for id, a := range s.accounts {
		cp := *a
		out.accounts[id] = &cp
	}
	for id, tx := range s.txs {
		cp := *tx
		out.txs[id] = &cp
	}
	return out
}

// RunInTx snapshots the state, runs fn against it and restores the snapshot
// if fn fails. The single mutex makes the unit serializable.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.state.clone()
	if err := fn(&memTx{state: &s.state}); err != nil {
		s.state = snap
		return err
	}
	return nil
}

// The exported Store methods lock and delegate to the unsynchronized memTx
// so the same code serves both direct calls and RunInTx units.

func (s *MemoryStore) InsertAccount(ctx context.Context, a Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{state: &s.state}).InsertAccount(ctx, a)
}

func (s *MemoryStore) GetAccount(ctx context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{state: &s.state}).GetAccount(ctx, id)
}

func (s *MemoryStore) GetAccounts(ctx context.Context, ids []string) (map[string]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{state: &s.state}).GetAccounts(ctx, ids)
}

func (s *MemoryStore) AccountsByCheckbook(ctx context.Context, checkbookID string) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{state: &s.state}).AccountsByCheckbook(ctx, checkbookID)
}

func (s *MemoryStore) ApplyDelta(ctx context.Context, id string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{state: &s.state}).ApplyDelta(ctx, id, delta)
}

func (s *MemoryStore) SetBalance(ctx context.Context, id string, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{state: &s.state}).SetBalance(ctx, id, balance)
}

func (s *MemoryStore) SetActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{state: &s.state}).SetActive(ctx, id, active)
}

func (s *MemoryStore) InsertTransaction(ctx context.Context, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{state: &s.state}).InsertTransaction(ctx, tx)
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{state: &s.state}).GetTransaction(ctx, id)
}

func (s *MemoryStore) UpdateTransaction(ctx context.Context, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{state: &s.state}).UpdateTransaction(ctx, tx)
}

func (s *MemoryStore) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{state: &s.state}).DeleteTransaction(ctx, id)
}

func (s *MemoryStore) SetReconciled(ctx context.Context, ids []string, reconciled bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{state: &s.state}).SetReconciled(ctx, ids, reconciled)
}

func (s *MemoryStore) TransactionsByCheckbook(ctx context.Context, checkbookID string, limit int) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{state: &s.state}).TransactionsByCheckbook(ctx, checkbookID, limit)
}

func (s *MemoryStore) TransactionsByAccount(ctx context.Context, accountID string) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{state: &s.state}).TransactionsByAccount(ctx, accountID)
}

func (s *MemoryStore) TransactionsByDateRange(ctx context.Context, checkbookID string, from, to time.Time) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{state: &s.state}).TransactionsByDateRange(ctx, checkbookID, from, to)
}

func (s *MemoryStore) InsertReconciliation(ctx context.Context, rec Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{state: &s.state}).InsertReconciliation(ctx, rec)
}

func (s *MemoryStore) ReconciliationsByAccount(ctx context.Context, accountID string) ([]Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{state: &s.state}).ReconciliationsByAccount(ctx, accountID)
}

// memTx operates on state without locking; MemoryStore and RunInTx hold the
// mutex around it.
type memTx struct {
	state *memState
}

var _ Store = (*memTx)(nil)
var _ Store = (*MemoryStore)(nil)
var _ TxRunner = (*MemoryStore)(nil)

func (m *memTx) InsertAccount(ctx context.Context, a Account) error {
	cp := a
	m.state.accounts[a.ID] = &cp
	return nil
}

func (m *memTx) GetAccount(ctx context.Context, id string) (Account, error) {
	a, ok := m.state.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *a, nil
}

func (m *memTx) GetAccounts(ctx context.Context, ids []string) (map[string]Account, error) {
	out := make(map[string]Account, len(ids))
	for _, id := range ids {
		a, ok := m.state.accounts[id]
		if !ok {
			return nil, ErrNotFound
		}
		out[id] = *a
	}
	return out, nil
}

func (m *memTx) AccountsByCheckbook(ctx context.Context, checkbookID string) ([]Account, error) {
	var out []Account
	for _, a := range m.state.accounts {
		if a.CheckbookID == checkbookID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memTx) ApplyDelta(ctx context.Context, id string, delta int64) error {
	a, ok := m.state.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Balance += delta
	return nil
}

func (m *memTx) SetBalance(ctx context.Context, id string, balance int64) error {
	a, ok := m.state.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Balance = balance
	return nil
}

func (m *memTx) SetActive(ctx context.Context, id string, active bool) error {
	a, ok := m.state.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Active = active
	return nil
}

func (m *memTx) InsertTransaction(ctx context.Context, tx Transaction) error {
	cp := tx
	m.state.txs[tx.ID] = &cp
	return nil
}

func (m *memTx) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	tx, ok := m.state.txs[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return *tx, nil
}

func (m *memTx) UpdateTransaction(ctx context.Context, tx Transaction) error {
	if _, ok := m.state.txs[tx.ID]; !ok {
		return ErrNotFound
	}
	cp := tx
	m.state.txs[tx.ID] = &cp
	return nil
}

func (m *memTx) DeleteTransaction(ctx context.Context, id string) error {
	if _, ok := m.state.txs[id]; !ok {
		return ErrNotFound
	}
	delete(m.state.txs, id)
	return nil
}

func (m *memTx) SetReconciled(ctx context.Context, ids []string, reconciled bool) (int, error) {
	count := 0
	for _, id := range ids {
		tx, ok := m.state.txs[id]
		if !ok {
			continue
		}
		if tx.Reconciled != reconciled {
			tx.Reconciled = reconciled
		}
		count++
	}
	return count, nil
}

func (m *memTx) TransactionsByCheckbook(ctx context.Context, checkbookID string, limit int) ([]Transaction, error) {
	var out []Transaction
	for _, tx := range m.state.txs {
		if tx.CheckbookID == checkbookID {
			out = append(out, *tx)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTx) TransactionsByAccount(ctx context.Context, accountID string) ([]Transaction, error) {
	var out []Transaction
	for _, tx := range m.state.txs {
		if tx.FromAccountID == accountID || tx.ToAccountID == accountID {
			out = append(out, *tx)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *memTx) TransactionsByDateRange(ctx context.Context, checkbookID string, from, to time.Time) ([]Transaction, error) {
	var out []Transaction
	for _, tx := range m.state.txs {
		if tx.CheckbookID != checkbookID {
			continue
		}
		if tx.Date.Before(from) || tx.Date.After(to) {
			continue
		}
		out = append(out, *tx)
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *memTx) InsertReconciliation(ctx context.Context, rec Reconciliation) error {
	m.state.recs = append(m.state.recs, rec)
	return nil
}

func (m *memTx) ReconciliationsByAccount(ctx context.Context, accountID string) ([]Reconciliation, error) {
	var out []Reconciliation
	for _, rec := range m.state.recs {
		if rec.AccountID == accountID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StatementDate.After(out[j].StatementDate)
	})
	return out, nil
}

func sortNewestFirst(txs []Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		return txs[i].ID > txs[j].ID
	})
}
