package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReconcileTransaction(t *testing.T) {
	eng, store := newTestEngine()
	ctx := context.Background()

	checking := mustAccount(ctx, eng, "cb1", "Checking", AccountAsset, 0)
	id, err := eng.CreateTransaction(ctx, TransactionRequest{
		CheckbookID: "cb1", Type: TxCredit, Date: day(1), FromAccountID: checking, Amount: 100,
	})
	if err != nil {
		t.Fatal(err)
	}

	before := balanceOf(ctx, store, checking)
	if err := eng.ReconcileTransaction(ctx, id); err != nil {
		t.Fatal(err)
	}
	tx, _ := store.GetTransaction(ctx, id)
	if !tx.Reconciled {
		t.Fatal("transaction not marked reconciled")
	}
	if got := balanceOf(ctx, store, checking); got != before {
		t.Fatalf("reconcile changed balance: %d -> %d", before, got)
	}

	if err := eng.ReconcileTransaction(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBulkReconcileCountsUpdates(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()

	checking := mustAccount(ctx, eng, "cb1", "Checking", AccountAsset, 0)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := eng.CreateTransaction(ctx, TransactionRequest{
			CheckbookID: "cb1", Type: TxCredit, Date: day(i + 1), FromAccountID: checking, Amount: int64(100 + i),
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	n, err := eng.BulkReconcile(ctx, append(ids, "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("updated count = %d, want 3", n)
	}
}

func TestCreateReconciliationRejectsUnbalancedStatement(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()

	// Opening balance 1000.00 serves as the first "last statement balance".
	checking := mustAccount(ctx, eng, "cb1", "Checking", AccountAsset, 100000)
	credit, err := eng.CreateTransaction(ctx, TransactionRequest{
		CheckbookID: "cb1", Type: TxCredit, Date: day(2), FromAccountID: checking, Amount: 50000,
	})
	if err != nil {
		t.Fatal(err)
	}
	debit, err := eng.CreateTransaction(ctx, TransactionRequest{
		CheckbookID: "cb1", Type: TxDebit, Date: day(3), FromAccountID: checking, Amount: 20000,
	})
	if err != nil {
		t.Fatal(err)
	}

	// 1000.00 + 500.00 - 200.00 = 1300.00; any other figure must be refused.
	_, err = eng.CreateReconciliation(ctx, ReconciliationRequest{
		CheckbookID: "cb1", AccountID: checking, StatementDate: day(31),
		StatementBalance:      130001,
		ClearedTransactionIDs: []string{credit, debit},
	})
	if !errors.Is(err, ErrUnbalanced) {
		t.Fatalf("expected ErrUnbalanced, got %v", err)
	}

	id, err := eng.CreateReconciliation(ctx, ReconciliationRequest{
		CheckbookID: "cb1", AccountID: checking, StatementDate: day(31),
		StatementBalance:      130000,
		ClearedTransactionIDs: []string{credit, debit},
	})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected reconciliation id")
	}

	history, err := eng.ReconciliationHistory(ctx, checking)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	rec := history[0]
	if rec.ReconciledBalance != 130000 || rec.Difference != 0 {
		t.Fatalf("unexpected checkpoint: %+v", rec)
	}
}

func TestReconciliationChainsFromLastStatement(t *testing.T) {
	eng, store := newTestEngine()
	ctx := context.Background()

	checking := mustAccount(ctx, eng, "cb1", "Checking", AccountAsset, 0)

	first, err := eng.CreateTransaction(ctx, TransactionRequest{
		CheckbookID: "cb1", Type: TxCredit, Date: day(1), FromAccountID: checking, Amount: 10000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.CreateReconciliation(ctx, ReconciliationRequest{
		CheckbookID: "cb1", AccountID: checking, StatementDate: day(10),
		StatementBalance: 10000, ClearedTransactionIDs: []string{first},
	}); err != nil {
		t.Fatal(err)
	}

	second, err := eng.CreateTransaction(ctx, TransactionRequest{
		CheckbookID: "cb1", Type: TxDebit, Date: day(15), FromAccountID: checking, Amount: 2500,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Second session starts from the previous statement balance, not opening.
	if _, err := eng.CreateReconciliation(ctx, ReconciliationRequest{
		CheckbookID: "cb1", AccountID: checking, StatementDate: day(28),
		StatementBalance: 7500, ClearedTransactionIDs: []string{second},
	}); err != nil {
		t.Fatal(err)
	}

	history, err := eng.ReconciliationHistory(ctx, checking)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	// Most recent statement first.
	if !history[0].StatementDate.Equal(day(28)) || !history[1].StatementDate.Equal(day(10)) {
		t.Fatalf("history not in statement-date descending order: %v, %v",
			history[0].StatementDate, history[1].StatementDate)
	}
	_ = store
}

func TestReconciliationHistoryIsAppendOnlyPerSession(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()

	checking := mustAccount(ctx, eng, "cb1", "Checking", AccountAsset, 0)
	var total int64
	for i := 1; i <= 3; i++ {
		id, err := eng.CreateTransaction(ctx, TransactionRequest{
			CheckbookID: "cb1", Type: TxCredit, Date: day(i), FromAccountID: checking, Amount: 1000,
		})
		if err != nil {
			t.Fatal(err)
		}
		total += 1000
		if _, err := eng.CreateReconciliation(ctx, ReconciliationRequest{
			CheckbookID: "cb1", AccountID: checking,
			StatementDate:         time.Date(2025, time.Month(i), 28, 0, 0, 0, 0, time.UTC),
			StatementBalance:      total,
			ClearedTransactionIDs: []string{id},
		}); err != nil {
			t.Fatalf("session %d: %v", i, err)
		}
	}

	history, err := eng.ReconciliationHistory(ctx, checking)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
}
