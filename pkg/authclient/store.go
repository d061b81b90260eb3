package authclient

import (
	"context"
	"fmt"
	"sync"
)

// CredentialStore exclusively owns the AuthState. All reads see a snapshot
// and all mutations are applied atomically under one mutex, so no caller
// ever observes a partially updated state. Every mutation persists the
// durable subset (refresh token, user, flag — never the access token)
// through the StateStorage collaborator. Store operations never make
// network calls.
type CredentialStore struct {
	mutex   sync.Mutex
	state   AuthState
	storage StateStorage
}

// NewCredentialStore constructs a store rehydrated from durable storage.
// The access token is always absent after rehydration; it must be
// re-acquired through a refresh.
func NewCredentialStore(ctx context.Context, storage StateStorage) (*CredentialStore, error) {
	if storage == nil {
		storage = NewMemoryStateStorage()
	}
	store := &CredentialStore{storage: storage}
	persisted, present, loadErr := storage.Load(ctx)
	if loadErr != nil {
		return nil, fmt.Errorf("credential_store.load: %w", loadErr)
	}
	if present {
		store.state = AuthState{
			RefreshToken:    persisted.RefreshToken,
			User:            persisted.User,
			IsAuthenticated: persisted.IsAuthenticated,
		}
	}
	return store, nil
}

// Read returns a snapshot of the current state.
func (store *CredentialStore) Read() AuthState {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.snapshotLocked()
}

// SetAuth replaces the whole state after a successful login.
func (store *CredentialStore) SetAuth(ctx context.Context, accessToken string, refreshToken string, user UserProfile) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	profile := user
	store.state = AuthState{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		User:            &profile,
		IsAuthenticated: true,
	}
	return store.persistLocked(ctx, "credential_store.set_auth")
}

// SetAccessToken replaces only the access token, leaving the refresh
// token, user, and flag untouched.
func (store *CredentialStore) SetAccessToken(ctx context.Context, accessToken string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.state.AccessToken = accessToken
	return store.persistLocked(ctx, "credential_store.set_access_token")
}

// Clear resets to the empty, logged-out state and wipes durable storage.
func (store *CredentialStore) Clear(ctx context.Context) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.state = AuthState{}
	if clearErr := store.storage.Clear(ctx); clearErr != nil {
		return fmt.Errorf("credential_store.clear: %w", clearErr)
	}
	return nil
}

func (store *CredentialStore) snapshotLocked() AuthState {
	snapshot := store.state
	if snapshot.User != nil {
		clone := *snapshot.User
		snapshot.User = &clone
	}
	return snapshot
}

func (store *CredentialStore) persistLocked(ctx context.Context, code string) error {
	persisted := PersistedState{
		RefreshToken:    store.state.RefreshToken,
		IsAuthenticated: store.state.IsAuthenticated,
	}
	if store.state.User != nil {
		clone := *store.state.User
		persisted.User = &clone
	}
	if saveErr := store.storage.Save(ctx, persisted); saveErr != nil {
		return fmt.Errorf("%s: %w", code, saveErr)
	}
	return nil
}
