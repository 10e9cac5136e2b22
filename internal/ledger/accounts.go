package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// AccountRequest is the input schema for creating an account.
// OpeningBalance is fixed here and never touched by postings.
type AccountRequest struct {
	CheckbookID    string
	Code           string
	ParentCode     string
	Name           string
	Type           AccountType
	OpeningBalance int64
}

func (r AccountRequest) Validate() error {
	var missing []string
	if r.CheckbookID == "" {
		missing = append(missing, "checkbook_id")
	}
	if r.Name == "" {
		missing = append(missing, "name")
	}
	if r.Type == "" {
		missing = append(missing, "type")
	} else if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown account type %q", ErrValidation, r.Type)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// CreateAccount registers a new account in the chart of accounts.
func (e *Engine) CreateAccount(ctx context.Context, req AccountRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	a := Account{
		ID:             e.ids.New(),
		CheckbookID:    req.CheckbookID,
		Code:           req.Code,
		ParentCode:     req.ParentCode,
		Name:           req.Name,
		Type:           req.Type,
		OpeningBalance: req.OpeningBalance,
		Active:         true,
		CreatedAt:      e.now(),
	}
	if err := e.store.InsertAccount(ctx, a); err != nil {
		return "", fmt.Errorf("insert account: %w", err)
	}
	e.cache.invalidate(req.CheckbookID)
	return a.ID, nil
}

// GetAccount returns a single account.
func (e *Engine) GetAccount(ctx context.Context, id string) (Account, error) {
	return e.store.GetAccount(ctx, id)
}

// Accounts lists a checkbook's chart of accounts through the read-through
// cache.
func (e *Engine) Accounts(ctx context.Context, checkbookID string) ([]Account, error) {
	return e.cache.get(ctx, e.store, checkbookID)
}

// DeactivateAccount soft-deactivates an account. Rows referencing it are
// kept; the account simply stops appearing in recomputation and reports.
func (e *Engine) DeactivateAccount(ctx context.Context, id string) error {
	a, err := e.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.SetActive(ctx, id, false); err != nil {
		return err
	}
	e.cache.invalidate(a.CheckbookID)
	return nil
}

// accountCache is a read-through cache of each checkbook's accounts, owned
// by the reporting side and invalidated explicitly after every posting.
type accountCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	accounts []Account
}

func (c *accountCache) get(ctx context.Context, s AccountStore, checkbookID string) ([]Account, error) {
	c.mu.RLock()
	entry, ok := c.entries[checkbookID]
	c.mu.RUnlock()
	if ok {
		return entry.accounts, nil
	}

	accounts, err := s.AccountsByCheckbook(ctx, checkbookID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[checkbookID] = cacheEntry{accounts: accounts}
	c.mu.Unlock()
	return accounts, nil
}

func (c *accountCache) invalidate(checkbookID string) {
	c.mu.Lock()
	delete(c.entries, checkbookID)
	c.mu.Unlock()
}
