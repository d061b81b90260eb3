package authclient

import (
	"context"
	"sync"
)

// PersistedState is the durable subset of AuthState. The access token is
// deliberately excluded: after a process restart it must be re-acquired
// through a refresh before the first authenticated request succeeds.
type PersistedState struct {
	RefreshToken    string
	User            *UserProfile
	IsAuthenticated bool
}

// StateStorage persists the durable subset of the session across process
// restarts. Implementations must be safe for concurrent use.
type StateStorage interface {
	Save(ctx context.Context, state PersistedState) error
	Load(ctx context.Context) (PersistedState, bool, error)
	Clear(ctx context.Context) error
}

// MemoryStateStorage keeps the persisted record in memory. Intended for
// tests and short-lived processes.
type MemoryStateStorage struct {
	mutex   sync.Mutex
	state   PersistedState
	present bool
}

// NewMemoryStateStorage creates an empty in-memory storage.
func NewMemoryStateStorage() *MemoryStateStorage {
	return &MemoryStateStorage{}
}

// Save replaces the stored record.
func (storage *MemoryStateStorage) Save(ctx context.Context, state PersistedState) error {
	storage.mutex.Lock()
	defer storage.mutex.Unlock()
	if state.User != nil {
		clone := *state.User
		state.User = &clone
	}
	storage.state = state
	storage.present = true
	return nil
}

// Load returns the stored record and whether one exists.
func (storage *MemoryStateStorage) Load(ctx context.Context) (PersistedState, bool, error) {
	storage.mutex.Lock()
	defer storage.mutex.Unlock()
	if !storage.present {
		return PersistedState{}, false, nil
	}
	state := storage.state
	if state.User != nil {
		clone := *state.User
		state.User = &clone
	}
	return state, true, nil
}

// Clear removes the stored record.
func (storage *MemoryStateStorage) Clear(ctx context.Context) error {
	storage.mutex.Lock()
	defer storage.mutex.Unlock()
	storage.state = PersistedState{}
	storage.present = false
	return nil
}
