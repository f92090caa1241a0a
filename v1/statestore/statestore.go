// Package statestore persists the one durable value the controller owns:
// the last committed lock state, read once at startup as the initial state.
package statestore

import (
	"context"
	"sync"

	"github.com/mirkobrombin/go-doorlock/v1/lock"
)

// Store loads and saves the lock state.
type Store interface {
	// Load returns the saved state. The boolean is false when nothing has
	// been saved yet.
	Load(ctx context.Context) (lock.State, bool, error)
	Save(ctx context.Context, s lock.State) error
}

// Memory is a Store that lives as long as the process.
type Memory struct {
	mu    sync.RWMutex
	state lock.State
	set   bool
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load implements Store.Load.
func (m *Memory) Load(ctx context.Context) (lock.State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.set, nil
}

// Save implements Store.Save.
func (m *Memory) Save(ctx context.Context, s lock.State) error {
	m.mu.Lock()
	m.state, m.set = s, true
	m.mu.Unlock()
	return nil
}
