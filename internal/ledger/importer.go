package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"checkbook.org/internal/stream"
)

// fingerprintNamespace pins the content-fingerprint hash so fingerprints are
// stable across processes and releases.
var fingerprintNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// ImportRow is one already-parsed statement row offered to bulk import.
type ImportRow struct {
	Type          TransactionType
	Date          time.Time
	FromAccountID string
	ToAccountID   string
	Amount        int64
	Reference     string
	Description   string
}

// ImportResult reports what a batch did.
type ImportResult struct {
	Inserted          int `json:"inserted"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
}

// Fingerprint hashes a transaction's defining fields. Re-importing an
// identical statement export therefore cannot double-post: the same fields
// always produce the same fingerprint.
func Fingerprint(fromAccountID, toAccountID string, date time.Time, amount int64, reference, description string) string {
	to := toAccountID
	if to == "" {
		to = "-"
	}
	payload := strings.Join([]string{
		fromAccountID,
		to,
		date.Format("2006-01-02"),
		strconv.FormatInt(amount, 10),
		reference,
		description,
	}, "|")
	return uuid.NewSHA1(fingerprintNamespace, []byte(payload)).String()
}

func (r ImportRow) fingerprint() string {
	return Fingerprint(r.FromAccountID, r.ToAccountID, r.Date, r.Amount, r.Reference, r.Description)
}

func (tx Transaction) fingerprint() string {
	return Fingerprint(tx.FromAccountID, tx.ToAccountID, tx.Date, tx.Amount, tx.Reference, tx.Description)
}

// BulkImport validates the whole batch, skips rows whose fingerprint already
// exists in the checkbook, inserts the survivors and applies one net balance
// delta per account. The entire batch is one atomic unit: a failure at any
// stage rolls back every insert and posting.
func (e *Engine) BulkImport(ctx context.Context, checkbookID string, rows []ImportRow) (ImportResult, error) {
	if checkbookID == "" {
		return ImportResult{}, fmt.Errorf("%w: missing required fields: checkbook_id", ErrValidation)
	}

	var problems []string
	for i, row := range rows {
		req := TransactionRequest{
			CheckbookID:   checkbookID,
			Type:          row.Type,
			Date:          row.Date,
			FromAccountID: row.FromAccountID,
			ToAccountID:   row.ToAccountID,
			Amount:        row.Amount,
		}
		if err := req.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("row %d: %v", i, err))
		}
	}
	if len(problems) > 0 {
		return ImportResult{}, fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}

	unlock := e.lockCheckbook(checkbookID)
	defer unlock()

	var (
		result   ImportResult
		inserted []Transaction
	)
	err := e.atomically(ctx, func(s Store) error {
		existing, err := s.TransactionsByCheckbook(ctx, checkbookID, 0)
		if err != nil {
			return fmt.Errorf("load existing transactions: %w", err)
		}
		seen := make(map[string]bool, len(existing)+len(rows))
		for _, tx := range existing {
			seen[tx.fingerprint()] = true
		}

		net := make(map[string]int64)
		now := e.now()
		for _, row := range rows {
			fp := row.fingerprint()
			if seen[fp] {
				result.DuplicatesSkipped++
				continue
			}
			seen[fp] = true

			tx := Transaction{
				ID:            e.ids.New(),
				CheckbookID:   checkbookID,
				Type:          row.Type,
				Date:          row.Date,
				FromAccountID: row.FromAccountID,
				ToAccountID:   row.ToAccountID,
				Amount:        row.Amount,
				Reference:     row.Reference,
				Description:   row.Description,
				CreatedAt:     now,
			}
			deltas, err := postingDeltas(ctx, s, tx)
			if err != nil {
				return err
			}
			if err := s.InsertTransaction(ctx, tx); err != nil {
				return fmt.Errorf("insert imported transaction: %w", err)
			}
			for id, d := range deltas {
				net[id] += d
			}
			inserted = append(inserted, tx)
			result.Inserted++
		}

		// One aggregate update per account, not one per row.
		return applyDeltas(ctx, s, net)
	})
	if err != nil {
		return ImportResult{}, err
	}

	if result.Inserted > 0 {
		accountIDs := make(map[string]bool)
		for _, tx := range inserted {
			for _, id := range touchedAccounts(tx) {
				accountIDs[id] = true
			}
		}
		evt := stream.PostingEvent{
			Kind:        stream.KindImport,
			CheckbookID: checkbookID,
			Timestamp:   e.now(),
		}
		for id := range accountIDs {
			evt.AccountIDs = append(evt.AccountIDs, id)
		}
		e.afterPosting(evt)
	}
	return result, nil
}
