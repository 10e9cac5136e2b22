package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"checkbook.org/internal/ids"
	"checkbook.org/internal/stream"
)

// Engine is the posting engine: every balance change in the system flows
// through it and through the one rule table in rules.go.
type Engine struct {
	store  Store
	ids    ids.Generator
	events *stream.Stream
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	cache accountCache
}

// Option configures Engine.
type Option func(*Engine)

// WithEvents wires a posting-event stream; the engine publishes after every
// applied posting.
func WithEvents(s *stream.Stream) Option {
	return func(e *Engine) { e.events = s }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine constructs an Engine over the given store.
func NewEngine(store Store, gen ids.Generator, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		ids:   gen,
		now:   func() time.Time { return time.Now().UTC() },
		locks: make(map[string]*sync.Mutex),
	}
	e.cache.entries = make(map[string]cacheEntry)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TransactionRequest is the validated input schema for creating a
// transaction. Amounts arrive already converted to minor units.
type TransactionRequest struct {
	CheckbookID   string
	Type          TransactionType
	Date          time.Time
	FromAccountID string
	ToAccountID   string
	Amount        int64
	Reference     string
	Description   string
}

// Validate checks the required-field and amount rules before any write.
func (r TransactionRequest) Validate() error {
	var missing []string
	if r.CheckbookID == "" {
		missing = append(missing, "checkbook_id")
	}
	if r.Type == "" {
		missing = append(missing, "type")
	} else if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrValidation, r.Type)
	}
	if r.Date.IsZero() {
		missing = append(missing, "date")
	}
	if r.FromAccountID == "" {
		missing = append(missing, "from_account_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// TransactionPatch carries an update; nil fields are left unchanged.
// A pointer to the empty string clears ToAccountID.
type TransactionPatch struct {
	Type          *TransactionType
	Date          *time.Time
	FromAccountID *string
	ToAccountID   *string
	Amount        *int64
	Reference     *string
	Description   *string
}

// touchesBalance reports whether applying the patch can change any posting
// delta. Type is included: flipping debit/credit flips every sign.
func (p TransactionPatch) touchesBalance() bool {
	return p.Amount != nil || p.FromAccountID != nil || p.ToAccountID != nil || p.Type != nil
}

func (p TransactionPatch) apply(tx Transaction) (Transaction, error) {
	if p.Type != nil {
		if !p.Type.Valid() {
			return Transaction{}, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, *p.Type)
		}
		tx.Type = *p.Type
	}
	if p.Date != nil {
		if p.Date.IsZero() {
			return Transaction{}, fmt.Errorf("%w: date cannot be cleared", ErrValidation)
		}
		tx.Date = *p.Date
	}
	if p.FromAccountID != nil {
		if *p.FromAccountID == "" {
			return Transaction{}, fmt.Errorf("%w: from_account_id cannot be cleared", ErrValidation)
		}
		tx.FromAccountID = *p.FromAccountID
	}
	if p.ToAccountID != nil {
		tx.ToAccountID = *p.ToAccountID
	}
	if p.Amount != nil {
		if *p.Amount <= 0 {
			return Transaction{}, ErrInvalidAmount
		}
		tx.Amount = *p.Amount
	}
	if p.Reference != nil {
		tx.Reference = *p.Reference
	}
	if p.Description != nil {
		tx.Description = *p.Description
	}
	return tx, nil
}

// CreateTransaction persists the row and applies the two posting legs as one
// atomic unit. It returns the new transaction id.
func (e *Engine) CreateTransaction(ctx context.Context, req TransactionRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	unlock := e.lockCheckbook(req.CheckbookID)
	defer unlock()

	tx := Transaction{
		ID:            e.ids.New(),
		CheckbookID:   req.CheckbookID,
		Type:          req.Type,
		Date:          req.Date,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Reference:     req.Reference,
		Description:   req.Description,
		CreatedAt:     e.now(),
	}

	err := e.atomically(ctx, func(s Store) error {
		deltas, err := postingDeltas(ctx, s, tx)
		if err != nil {
			return err
		}
		if err := s.InsertTransaction(ctx, tx); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return applyDeltas(ctx, s, deltas)
	})
	if err != nil {
		return "", err
	}

	e.afterPosting(stream.PostingEvent{
		Kind:          stream.KindCreate,
		CheckbookID:   tx.CheckbookID,
		TransactionID: tx.ID,
		AccountIDs:    touchedAccounts(tx),
		Amount:        tx.Amount,
		Timestamp:     e.now(),
	})
	return tx.ID, nil
}

// UpdateTransaction merges the patch into the stored row. When a
// balance-affecting field changed it reverses the original postings with the
// original accounts' types, then posts the merged transaction with the new
// accounts' types — both inside one atomic unit.
func (e *Engine) UpdateTransaction(ctx context.Context, id string, patch TransactionPatch) error {
	orig, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}

	unlock := e.lockCheckbook(orig.CheckbookID)
	defer unlock()

	var touched []string
	err = e.atomically(ctx, func(s Store) error {
		// Re-read under the lock: the first read raced with other writers.
		orig, err := s.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		merged, err := patch.apply(orig)
		if err != nil {
			return err
		}

		if !patch.touchesBalance() {
			return s.UpdateTransaction(ctx, merged)
		}

		reversal, err := postingDeltas(ctx, s, orig)
		if err != nil {
			return err
		}
		repost, err := postingDeltas(ctx, s, merged)
		if err != nil {
			return err
		}
		if err := s.UpdateTransaction(ctx, merged); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		for id, d := range reversal {
			repost[id] -= d
		}
		if err := applyDeltas(ctx, s, repost); err != nil {
			return err
		}
		touched = append(touchedAccounts(orig), touchedAccounts(merged)...)
		return nil
	})
	if err != nil {
		return err
	}

	e.afterPosting(stream.PostingEvent{
		Kind:          stream.KindUpdate,
		CheckbookID:   orig.CheckbookID,
		TransactionID: id,
		AccountIDs:    touched,
		Timestamp:     e.now(),
	})
	return nil
}

// DeleteTransaction reverses the postings through the same rule table used
// to create them, then removes the row.
func (e *Engine) DeleteTransaction(ctx context.Context, id string) error {
	orig, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}

	unlock := e.lockCheckbook(orig.CheckbookID)
	defer unlock()

	err = e.atomically(ctx, func(s Store) error {
		tx, err := s.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		deltas, err := postingDeltas(ctx, s, tx)
		if err != nil {
			return err
		}
		for id := range deltas {
			deltas[id] = -deltas[id]
		}
		if err := s.DeleteTransaction(ctx, id); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return applyDeltas(ctx, s, deltas)
	})
	if err != nil {
		return err
	}

	e.afterPosting(stream.PostingEvent{
		Kind:          stream.KindDelete,
		CheckbookID:   orig.CheckbookID,
		TransactionID: id,
		AccountIDs:    touchedAccounts(orig),
		Amount:        orig.Amount,
		Timestamp:     e.now(),
	})
	return nil
}

// GetTransaction returns a stored transaction row.
func (e *Engine) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	return e.store.GetTransaction(ctx, id)
}

// RecentTransactions lists the newest transactions in a checkbook.
func (e *Engine) RecentTransactions(ctx context.Context, checkbookID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return e.store.TransactionsByCheckbook(ctx, checkbookID, limit)
}

// AccountRegister lists all transactions touching an account, newest first.
func (e *Engine) AccountRegister(ctx context.Context, accountID string) ([]Transaction, error) {
	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return e.store.TransactionsByAccount(ctx, accountID)
}

// --- internals ---

// atomically runs fn inside the store's transactional unit when the store
// provides one. The in-memory and pg stores both do; a store that cannot
// still gets the engine's per-checkbook serialization.
func (e *Engine) atomically(ctx context.Context, fn func(Store) error) error {
	if r, ok := e.store.(TxRunner); ok {
		return r.RunInTx(ctx, fn)
	}
	return fn(e.store)
}

// lockCheckbook serializes mutating operations per checkbook. This closes
// the read-reverse-write window on update/delete against concurrent writers
// observing stale intermediate state.
func (e *Engine) lockCheckbook(checkbookID string) func() {
	e.mu.Lock()
	l, ok := e.locks[checkbookID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[checkbookID] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (e *Engine) afterPosting(evt stream.PostingEvent) {
	e.cache.invalidate(evt.CheckbookID)
	if e.events != nil {
		e.events.Publish(evt)
	}
}

// postingDeltas resolves the touched accounts and computes the signed delta
// per account. A transaction whose from and to are the same account gets
// both legs summed.
func postingDeltas(ctx context.Context, s Store, tx Transaction) (map[string]int64, error) {
	from, err := s.GetAccount(ctx, tx.FromAccountID)
	if err != nil {
		return nil, fmt.Errorf("from account %s: %w", tx.FromAccountID, err)
	}
	deltas := map[string]int64{
		from.ID: Delta(from.Type, tx.Type, RoleFrom, tx.Amount),
	}
	if tx.ToAccountID != "" {
		to, err := s.GetAccount(ctx, tx.ToAccountID)
		if err != nil {
			return nil, fmt.Errorf("to account %s: %w", tx.ToAccountID, err)
		}
		deltas[to.ID] += Delta(to.Type, tx.Type, RoleTo, tx.Amount)
	}
	return deltas, nil
}

func applyDeltas(ctx context.Context, s Store, deltas map[string]int64) error {
	for id, d := range deltas {
		if d == 0 {
			continue
		}
		if err := s.ApplyDelta(ctx, id, d); err != nil {
			return fmt.Errorf("apply delta to account %s: %w", id, err)
		}
	}
	return nil
}

func touchedAccounts(tx Transaction) []string {
	out := []string{tx.FromAccountID}
	if tx.ToAccountID != "" && tx.ToAccountID != tx.FromAccountID {
		out = append(out, tx.ToAccountID)
	}
	return out
}
