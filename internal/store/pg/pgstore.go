// Package pg implements the ledger persistence contract on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"checkbook.org/internal/ledger"
)

// Store runs every operation against a *sql.DB pool. RunInTx re-binds the
// same queries to a serializable *sql.Tx so the engine's atomic units map to
// real database transactions.
type Store struct {
	db *sql.DB
	q  queries
}

var (
	_ ledger.Store    = (*Store)(nil)
	_ ledger.TxRunner = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing pool. Used by tests with a mocked driver.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: queries{db: db}}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// RunInTx scopes fn to a single serializable transaction. Any error from fn
// rolls everything back.
func (s *Store) RunInTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&txStore{q: queries{db: tx}}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) InsertAccount(ctx context.Context, a ledger.Account) error {
	return s.q.insertAccount(ctx, a)
}
func (s *Store) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	return s.q.getAccount(ctx, id)
}
func (s *Store) GetAccounts(ctx context.Context, ids []string) (map[string]ledger.Account, error) {
	return s.q.getAccounts(ctx, ids)
}
func (s *Store) AccountsByCheckbook(ctx context.Context, checkbookID string) ([]ledger.Account, error) {
	return s.q.accountsByCheckbook(ctx, checkbookID)
}
func (s *Store) ApplyDelta(ctx context.Context, id string, delta int64) error {
	return s.q.applyDelta(ctx, id, delta)
}
func (s *Store) SetBalance(ctx context.Context, id string, balance int64) error {
	return s.q.setBalance(ctx, id, balance)
}
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.q.setActive(ctx, id, active)
}
func (s *Store) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	return s.q.insertTransaction(ctx, tx)
}
func (s *Store) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	return s.q.getTransaction(ctx, id)
}
func (s *Store) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	return s.q.updateTransaction(ctx, tx)
}
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	return s.q.deleteTransaction(ctx, id)
}
func (s *Store) SetReconciled(ctx context.Context, ids []string, reconciled bool) (int, error) {
	return s.q.setReconciled(ctx, ids, reconciled)
}
func (s *Store) TransactionsByCheckbook(ctx context.Context, checkbookID string, limit int) ([]ledger.Transaction, error) {
	return s.q.transactionsByCheckbook(ctx, checkbookID, limit)
}
func (s *Store) TransactionsByAccount(ctx context.Context, accountID string) ([]ledger.Transaction, error) {
	return s.q.transactionsByAccount(ctx, accountID)
}
func (s *Store) TransactionsByDateRange(ctx context.Context, checkbookID string, from, to time.Time) ([]ledger.Transaction, error) {
	return s.q.transactionsByDateRange(ctx, checkbookID, from, to)
}
func (s *Store) InsertReconciliation(ctx context.Context, rec ledger.Reconciliation) error {
	return s.q.insertReconciliation(ctx, rec)
}
func (s *Store) ReconciliationsByAccount(ctx context.Context, accountID string) ([]ledger.Reconciliation, error) {
	return s.q.reconciliationsByAccount(ctx, accountID)
}

// txStore exposes the same queries bound to an open transaction.
type txStore struct {
	q queries
}

var _ ledger.Store = (*txStore)(nil)

func (t *txStore) InsertAccount(ctx context.Context, a ledger.Account) error {
	return t.q.insertAccount(ctx, a)
}
func (t *txStore) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	return t.q.getAccount(ctx, id)
}
func (t *txStore) GetAccounts(ctx context.Context, ids []string) (map[string]ledger.Account, error) {
	return t.q.getAccounts(ctx, ids)
}
func (t *txStore) AccountsByCheckbook(ctx context.Context, checkbookID string) ([]ledger.Account, error) {
	return t.q.accountsByCheckbook(ctx, checkbookID)
}
func (t *txStore) ApplyDelta(ctx context.Context, id string, delta int64) error {
	return t.q.applyDelta(ctx, id, delta)
}
func (t *txStore) SetBalance(ctx context.Context, id string, balance int64) error {
	return t.q.setBalance(ctx, id, balance)
}
func (t *txStore) SetActive(ctx context.Context, id string, active bool) error {
	return t.q.setActive(ctx, id, active)
}
func (t *txStore) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	return t.q.insertTransaction(ctx, tx)
}
func (t *txStore) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	return t.q.getTransaction(ctx, id)
}
func (t *txStore) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	return t.q.updateTransaction(ctx, tx)
}
func (t *txStore) DeleteTransaction(ctx context.Context, id string) error {
	return t.q.deleteTransaction(ctx, id)
}
func (t *txStore) SetReconciled(ctx context.Context, ids []string, reconciled bool) (int, error) {
	return t.q.setReconciled(ctx, ids, reconciled)
}
func (t *txStore) TransactionsByCheckbook(ctx context.Context, checkbookID string, limit int) ([]ledger.Transaction, error) {
	return t.q.transactionsByCheckbook(ctx, checkbookID, limit)
}
func (t *txStore) TransactionsByAccount(ctx context.Context, accountID string) ([]ledger.Transaction, error) {
	return t.q.transactionsByAccount(ctx, accountID)
}
func (t *txStore) TransactionsByDateRange(ctx context.Context, checkbookID string, from, to time.Time) ([]ledger.Transaction, error) {
	return t.q.transactionsByDateRange(ctx, checkbookID, from, to)
}
func (t *txStore) InsertReconciliation(ctx context.Context, rec ledger.Reconciliation) error {
	return t.q.insertReconciliation(ctx, rec)
}
func (t *txStore) ReconciliationsByAccount(ctx context.Context, accountID string) ([]ledger.Reconciliation, error) {
	return t.q.reconciliationsByAccount(ctx, accountID)
}

// querier is the shared subset of *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db querier
}

const accountCols = `id, checkbook_id, code, parent_code, name, type, opening_balance, balance, active, created_at`

func (q queries) insertAccount(ctx context.Context, a ledger.Account) error {
	_, err := q.db.ExecContext(ctx, `
		insert into accounts(`+accountCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, a.ID, a.CheckbookID, a.Code, a.ParentCode, a.Name, string(a.Type),
		a.OpeningBalance, a.Balance, a.Active, a.CreatedAt.UTC())
	return err
}

func scanAccount(row interface{ Scan(...any) error }) (ledger.Account, error) {
	var a ledger.Account
	var typ string
	err := row.Scan(&a.ID, &a.CheckbookID, &a.Code, &a.ParentCode, &a.Name, &typ,
		&a.OpeningBalance, &a.Balance, &a.Active, &a.CreatedAt)
	if err != nil {
		return ledger.Account{}, err
	}
	a.Type = ledger.AccountType(typ)
	return a, nil
}

func (q queries) getAccount(ctx context.Context, id string) (ledger.Account, error) {
	a, err := scanAccount(q.db.QueryRowContext(ctx, `
		select `+accountCols+` from accounts where id=$1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrNotFound
	}
	return a, err
}

func (q queries) getAccounts(ctx context.Context, ids []string) (map[string]ledger.Account, error) {
	res := make(map[string]ledger.Account, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	rows, err := q.db.QueryContext(ctx, `
		select `+accountCols+` from accounts where id = any($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		res[a.ID] = a
	}
	return res, rows.Err()
}

func (q queries) accountsByCheckbook(ctx context.Context, checkbookID string) ([]ledger.Account, error) {
	rows, err := q.db.QueryContext(ctx, `
		select `+accountCols+` from accounts
		where checkbook_id=$1
		order by code, name
	`, checkbookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (q queries) applyDelta(ctx context.Context, id string, delta int64) error {
	return q.mustUpdateOne(ctx, `
		update accounts set balance = balance + $2 where id=$1
	`, id, delta)
}

func (q queries) setBalance(ctx context.Context, id string, balance int64) error {
	return q.mustUpdateOne(ctx, `
		update accounts set balance = $2 where id=$1
	`, id, balance)
}

func (q queries) setActive(ctx context.Context, id string, active bool) error {
	return q.mustUpdateOne(ctx, `
		update accounts set active = $2 where id=$1
	`, id, active)
}

const txCols = `id, checkbook_id, type, date, from_account_id, to_account_id, amount, reference, description, reconciled, created_at`

func (q queries) insertTransaction(ctx context.Context, tx ledger.Transaction) error {
	_, err := q.db.ExecContext(ctx, `
		insert into transactions(`+txCols+`)
		values ($1,$2,$3,$4,$5,nullif($6,''),$7,$8,$9,$10,$11)
	`, tx.ID, tx.CheckbookID, string(tx.Type), tx.Date.UTC(), tx.FromAccountID, tx.ToAccountID,
		tx.Amount, tx.Reference, tx.Description, tx.Reconciled, tx.CreatedAt.UTC())
	return err
}

func scanTransaction(row interface{ Scan(...any) error }) (ledger.Transaction, error) {
	var tx ledger.Transaction
	var typ string
	var to sql.NullString
	err := row.Scan(&tx.ID, &tx.CheckbookID, &typ, &tx.Date, &tx.FromAccountID, &to,
		&tx.Amount, &tx.Reference, &tx.Description, &tx.Reconciled, &tx.CreatedAt)
	if err != nil {
		return ledger.Transaction{}, err
	}
	tx.Type = ledger.TransactionType(typ)
	if to.Valid {
		tx.ToAccountID = to.String
	}
	return tx, nil
}

func (q queries) getTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	tx, err := scanTransaction(q.db.QueryRowContext(ctx, `
		select `+txCols+` from transactions where id=$1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	return tx, err
}

func (q queries) updateTransaction(ctx context.Context, tx ledger.Transaction) error {
	return q.mustUpdateOne(ctx, `
		update transactions
		set type=$2, date=$3, from_account_id=$4, to_account_id=nullif($5,''),
		    amount=$6, reference=$7, description=$8, reconciled=$9
		where id=$1
	`, tx.ID, string(tx.Type), tx.Date.UTC(), tx.FromAccountID, tx.ToAccountID,
		tx.Amount, tx.Reference, tx.Description, tx.Reconciled)
}

func (q queries) deleteTransaction(ctx context.Context, id string) error {
	return q.mustUpdateOne(ctx, `delete from transactions where id=$1`, id)
}

func (q queries) setReconciled(ctx context.Context, ids []string, reconciled bool) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := q.db.ExecContext(ctx, `
		update transactions set reconciled=$2 where id = any($1)
	`, ids, reconciled)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (q queries) transactionsByCheckbook(ctx context.Context, checkbookID string, limit int) ([]ledger.Transaction, error) {
	query := `
		select ` + txCols + ` from transactions
		where checkbook_id=$1
		order by date desc, created_at desc, id desc
	`
	args := []any{checkbookID}
	if limit > 0 {
		query += ` limit $2`
		args = append(args, limit)
	}
	return q.queryTransactions(ctx, query, args...)
}

func (q queries) transactionsByAccount(ctx context.Context, accountID string) ([]ledger.Transaction, error) {
	return q.queryTransactions(ctx, `
		select `+txCols+` from transactions
		where from_account_id=$1 or to_account_id=$1
		order by date desc, created_at desc, id desc
	`, accountID)
}

func (q queries) transactionsByDateRange(ctx context.Context, checkbookID string, from, to time.Time) ([]ledger.Transaction, error) {
	return q.queryTransactions(ctx, `
		select `+txCols+` from transactions
		where checkbook_id=$1 and date >= $2 and date <= $3
		order by date desc, created_at desc, id desc
	`, checkbookID, from.UTC(), to.UTC())
}

func (q queries) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, tx)
	}
	return res, rows.Err()
}

const recCols = `id, checkbook_id, account_id, statement_date, statement_balance, reconciled_balance, difference, created_at`

func (q queries) insertReconciliation(ctx context.Context, rec ledger.Reconciliation) error {
	_, err := q.db.ExecContext(ctx, `
		insert into reconciliations(`+recCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.ID, rec.CheckbookID, rec.AccountID, rec.StatementDate.UTC(),
		rec.StatementBalance, rec.ReconciledBalance, rec.Difference, rec.CreatedAt.UTC())
	return err
}

func (q queries) reconciliationsByAccount(ctx context.Context, accountID string) ([]ledger.Reconciliation, error) {
	rows, err := q.db.QueryContext(ctx, `
		select `+recCols+` from reconciliations
		where account_id=$1
		order by statement_date desc, created_at desc
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ledger.Reconciliation
	for rows.Next() {
		var rec ledger.Reconciliation
		if err := rows.Scan(&rec.ID, &rec.CheckbookID, &rec.AccountID, &rec.StatementDate,
			&rec.StatementBalance, &rec.ReconciledBalance, &rec.Difference, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// mustUpdateOne maps a zero-row write to ErrNotFound so callers can treat
// unknown ids uniformly across stores.
func (q queries) mustUpdateOne(ctx context.Context, query string, args ...any) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: no row matched", ledger.ErrNotFound)
	}
	return nil
}
