package authclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubRenewalClient struct {
	calls  atomic.Int64
	gate   chan struct{}
	token  string
	err    error
	tokens []string
	mutex  sync.Mutex
}

func (stub *stubRenewalClient) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	stub.calls.Add(1)
	if stub.gate != nil {
		<-stub.gate
	}
	if stub.err != nil {
		return "", stub.err
	}
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	if len(stub.tokens) > 0 {
		next := stub.tokens[0]
		stub.tokens = stub.tokens[1:]
		return next, nil
	}
	return stub.token, nil
}

func newAuthenticatedStore(t *testing.T) *CredentialStore {
	t.Helper()
	store, storeErr := NewCredentialStore(context.Background(), NewMemoryStateStorage())
	if storeErr != nil {
		t.Fatalf("store error: %v", storeErr)
	}
	profile := UserProfile{ID: "user-1", Email: "kim@example.com", Name: "Kim"}
	if setErr := store.SetAuth(context.Background(), "stale-access", "refresh-token", profile); setErr != nil {
		t.Fatalf("set auth error: %v", setErr)
	}
	return store
}

func TestRefreshCoordinatorDeduplicatesConcurrentCallers(t *testing.T) {
	t.Parallel()

	store := newAuthenticatedStore(t)
	stub := &stubRenewalClient{token: "fresh-access", gate: make(chan struct{})}
	coordinator := NewRefreshCoordinator(store, stub, time.Second)

	const callers = 8
	results := make(chan string, callers)
	failures := make(chan error, callers)

	var waitGroup sync.WaitGroup
	for index := 0; index < callers; index++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			token, err := coordinator.EnsureRefreshed(context.Background())
			if err != nil {
				failures <- err
				return
			}
			results <- token
		}()
	}

	// Give every caller time to attach to the in-flight handle before the
	// stub is allowed to answer.
	time.Sleep(50 * time.Millisecond)
	close(stub.gate)
	waitGroup.Wait()
	close(results)
	close(failures)

	for err := range failures {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	for token := range results {
		if token != "fresh-access" {
			t.Fatalf("expected every caller to see fresh-access, got %q", token)
		}
	}
	if callCount := stub.calls.Load(); callCount != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", callCount)
	}
	if store.Read().AccessToken != "fresh-access" {
		t.Fatalf("expected store updated with fresh token")
	}
}

func TestRefreshCoordinatorSequentialCallsRefreshAgain(t *testing.T) {
	t.Parallel()

	store := newAuthenticatedStore(t)
	stub := &stubRenewalClient{tokens: []string{"first-access", "second-access"}}
	coordinator := NewRefreshCoordinator(store, stub, time.Second)

	first, firstErr := coordinator.EnsureRefreshed(context.Background())
	if firstErr != nil {
		t.Fatalf("first refresh error: %v", firstErr)
	}
	second, secondErr := coordinator.EnsureRefreshed(context.Background())
	if secondErr != nil {
		t.Fatalf("second refresh error: %v", secondErr)
	}

	if first != "first-access" || second != "second-access" {
		t.Fatalf("expected distinct tokens, got %q and %q", first, second)
	}
	if callCount := stub.calls.Load(); callCount != 2 {
		t.Fatalf("expected two refresh calls, got %d", callCount)
	}
}

func TestRefreshCoordinatorFailsWithoutRefreshToken(t *testing.T) {
	t.Parallel()

	store, storeErr := NewCredentialStore(context.Background(), NewMemoryStateStorage())
	if storeErr != nil {
		t.Fatalf("store error: %v", storeErr)
	}
	stub := &stubRenewalClient{token: "unused"}
	coordinator := NewRefreshCoordinator(store, stub, time.Second)

	_, refreshErr := coordinator.EnsureRefreshed(context.Background())
	if !errors.Is(refreshErr, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", refreshErr)
	}
	if callCount := stub.calls.Load(); callCount != 0 {
		t.Fatalf("expected no network call without a refresh token, got %d", callCount)
	}
}

func TestRefreshCoordinatorClearsStoreOnRejection(t *testing.T) {
	t.Parallel()

	storage := NewMemoryStateStorage()
	store, storeErr := NewCredentialStore(context.Background(), storage)
	if storeErr != nil {
		t.Fatalf("store error: %v", storeErr)
	}
	profile := UserProfile{ID: "user-1", Email: "kim@example.com", Name: "Kim"}
	if setErr := store.SetAuth(context.Background(), "stale-access", "refresh-token", profile); setErr != nil {
		t.Fatalf("set auth error: %v", setErr)
	}

	stub := &stubRenewalClient{err: ErrRefreshRejected}
	coordinator := NewRefreshCoordinator(store, stub, time.Second)

	_, refreshErr := coordinator.EnsureRefreshed(context.Background())
	if !errors.Is(refreshErr, ErrRefreshRejected) {
		t.Fatalf("expected ErrRefreshRejected, got %v", refreshErr)
	}

	state := store.Read()
	if state.IsAuthenticated || state.RefreshToken != "" {
		t.Fatalf("expected store cleared after rejection, got %+v", state)
	}
	if _, present, _ := storage.Load(context.Background()); present {
		t.Fatalf("expected durable storage cleared after rejection")
	}
}

func TestRefreshCoordinatorCallerAbandonDoesNotCancelSharedRefresh(t *testing.T) {
	t.Parallel()

	store := newAuthenticatedStore(t)
	stub := &stubRenewalClient{token: "fresh-access", gate: make(chan struct{})}
	coordinator := NewRefreshCoordinator(store, stub, time.Second)

	abandonCtx, abandon := context.WithCancel(context.Background())
	abandonedResult := make(chan error, 1)
	go func() {
		_, err := coordinator.EnsureRefreshed(abandonCtx)
		abandonedResult <- err
	}()

	patientResult := make(chan string, 1)
	go func() {
		token, _ := coordinator.EnsureRefreshed(context.Background())
		patientResult <- token
	}()

	time.Sleep(50 * time.Millisecond)
	abandon()

	abandonedErr := <-abandonedResult
	if !errors.Is(abandonedErr, context.Canceled) {
		t.Fatalf("expected context.Canceled for the abandoning caller, got %v", abandonedErr)
	}

	close(stub.gate)
	if token := <-patientResult; token != "fresh-access" {
		t.Fatalf("the patient caller must still get the token, got %q", token)
	}
	if callCount := stub.calls.Load(); callCount != 1 {
		t.Fatalf("expected one shared refresh call, got %d", callCount)
	}
}
