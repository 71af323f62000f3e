package accounts

import (
	"context"
	"sync"
)

// MemoryStore keeps accounts in memory. It backs runs that have no database
// configured and are fed from the profiles ledger CSV instead.
type MemoryStore struct {
	mu       sync.RWMutex
	byEmail  map[string]Account
	order    []string
	nextID   int64
	shuffler Shuffler
}

func NewMemoryStore(accts []Account, shuffler Shuffler) *MemoryStore {
	if shuffler == nil {
		shuffler = NewShuffler(0)
	}
	m := &MemoryStore{
		byEmail:  make(map[string]Account, len(accts)),
		shuffler: shuffler,
	}
	for i := range accts {
		acct := accts[i]
		_ = m.Create(context.Background(), &acct)
	}
	return m
}

func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.byEmail[email]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

func (m *MemoryStore) SampleRandom(ctx context.Context, excluding []string, limit int) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	candidates := make([]Account, 0, len(m.order))
	for _, email := range m.order {
		candidates = append(candidates, m.byEmail[email])
	}
	m.mu.RUnlock()
	return pickDistinct(candidates, excluding, limit, m.shuffler), nil
}

// Create adds the account, or replaces the stored one with the same email.
func (m *MemoryStore) Create(ctx context.Context, acct *Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.byEmail[acct.Email]; ok {
		acct.ID = prev.ID
	} else {
		m.nextID++
		if acct.ID == 0 {
			acct.ID = m.nextID
		}
		m.order = append(m.order, acct.Email)
	}
	m.byEmail[acct.Email] = *acct
	return nil
}

// Len returns the number of stored accounts.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}
