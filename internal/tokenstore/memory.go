package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the token in process memory. It is used by tests and by
// the CLI's --ephemeral mode.
type MemoryStore struct {
	mu    sync.Mutex
	token string
	set   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the stored token.
func (m *MemoryStore) Get(ctx context.Context) (string, bool, error) {
	if err := checkContext(ctx, "get"); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.set, nil
}

// Set overwrites the stored token.
func (m *MemoryStore) Set(ctx context.Context, token string) error {
	if err := checkContext(ctx, "set"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.set = token, true
	return nil
}

// Remove clears the stored token.
func (m *MemoryStore) Remove(ctx context.Context) error {
	if err := checkContext(ctx, "remove"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.set = "", false
	return nil
}
