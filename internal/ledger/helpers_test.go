package ledger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// seqIDs is a deterministic ids.Generator for tests.
type seqIDs struct {
	n atomic.Int64
}

func (g *seqIDs) New() string {
	return fmt.Sprintf("id-%04d", g.n.Add(1))
}

func newTestEngine(opts ...Option) (*Engine, *MemoryStore) {
	store := NewMemoryStore()
	eng := NewEngine(store, &seqIDs{}, opts...)
	return eng, store
}

func mustAccount(ctx context.Context, eng *Engine, checkbook, name string, at AccountType, opening int64) string {
	id, err := eng.CreateAccount(ctx, AccountRequest{
		CheckbookID:    checkbook,
		Name:           name,
		Type:           at,
		OpeningBalance: opening,
	})
	if err != nil {
		panic(err)
	}
	return id
}

func balanceOf(ctx context.Context, store *MemoryStore, id string) int64 {
	a, err := store.GetAccount(ctx, id)
	if err != nil {
		panic(err)
	}
	return a.Balance
}

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC)
}
