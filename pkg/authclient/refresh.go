package authclient

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RenewalClient calls the server refresh endpoint.
type RenewalClient interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
}

// DefaultRefreshTimeout bounds a refresh call independently of any single
// caller's context.
const DefaultRefreshTimeout = 10 * time.Second

type inflightRefresh struct {
	done        chan struct{}
	accessToken string
	err         error
}

// RefreshCoordinator deduplicates concurrent refresh attempts into one
// in-flight operation. Exactly one in-flight handle exists at a time,
// guarded by the mutex; callers finding one attach to it and block until
// it settles. The shared operation runs under its own timeout so a caller
// abandoning its request never cancels a refresh other callers depend on.
type RefreshCoordinator struct {
	mutex    sync.Mutex
	inflight *inflightRefresh
	store    *CredentialStore
	client   RenewalClient
	timeout  time.Duration
}

// NewRefreshCoordinator constructs a coordinator bound to the store and
// renewal client.
func NewRefreshCoordinator(store *CredentialStore, client RenewalClient, timeout time.Duration) *RefreshCoordinator {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &RefreshCoordinator{
		store:   store,
		client:  client,
		timeout: timeout,
	}
}

// EnsureRefreshed returns a valid access token, starting a refresh if none
// is in flight or attaching to the one that is. All attached callers
// receive the same settled result. On any failure the store is cleared
// entirely, forcing a full re-login; a failed refresh never leaves a mixed
// state behind.
func (coordinator *RefreshCoordinator) EnsureRefreshed(ctx context.Context) (string, error) {
	coordinator.mutex.Lock()
	handle := coordinator.inflight
	if handle == nil {
		handle = &inflightRefresh{done: make(chan struct{})}
		coordinator.inflight = handle
		go coordinator.run(handle)
	}
	coordinator.mutex.Unlock()

	select {
	case <-handle.done:
		return handle.accessToken, handle.err
	case <-ctx.Done():
		// Only this caller's wait is abandoned; the shared refresh
		// keeps running for everyone else.
		return "", fmt.Errorf("refresh_coordinator.wait: %w", ctx.Err())
	}
}

func (coordinator *RefreshCoordinator) run(handle *inflightRefresh) {
	ctx, cancel := context.WithTimeout(context.Background(), coordinator.timeout)
	defer cancel()

	handle.accessToken, handle.err = coordinator.refreshOnce(ctx)

	coordinator.mutex.Lock()
	coordinator.inflight = nil
	coordinator.mutex.Unlock()
	close(handle.done)
}

func (coordinator *RefreshCoordinator) refreshOnce(ctx context.Context) (string, error) {
	snapshot := coordinator.store.Read()
	if snapshot.RefreshToken == "" {
		_ = coordinator.store.Clear(ctx)
		return "", fmt.Errorf("refresh_coordinator.refresh: %w", ErrNoRefreshToken)
	}

	accessToken, refreshErr := coordinator.client.RefreshAccessToken(ctx, snapshot.RefreshToken)
	if refreshErr != nil {
		_ = coordinator.store.Clear(ctx)
		return "", fmt.Errorf("refresh_coordinator.refresh: %w", refreshErr)
	}

	if saveErr := coordinator.store.SetAccessToken(ctx, accessToken); saveErr != nil {
		return "", fmt.Errorf("refresh_coordinator.refresh: %w", saveErr)
	}
	return accessToken, nil
}
