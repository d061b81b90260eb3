package authclient

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMemoryStateStorageRoundTrip(t *testing.T) {
	t.Parallel()

	storage := NewMemoryStateStorage()
	if _, present, _ := storage.Load(context.Background()); present {
		t.Fatalf("fresh storage must be empty")
	}

	profile := UserProfile{ID: "user-1", Email: "kim@example.com", Name: "Kim"}
	saved := PersistedState{RefreshToken: "refresh-token", User: &profile, IsAuthenticated: true}
	if saveErr := storage.Save(context.Background(), saved); saveErr != nil {
		t.Fatalf("save error: %v", saveErr)
	}

	loaded, present, loadErr := storage.Load(context.Background())
	if loadErr != nil || !present {
		t.Fatalf("load error: %v present %v", loadErr, present)
	}
	if loaded.RefreshToken != "refresh-token" || !loaded.IsAuthenticated || loaded.User == nil || loaded.User.Name != "Kim" {
		t.Fatalf("unexpected loaded state: %+v", loaded)
	}

	// Mutating the loaded copy must not leak back into storage.
	loaded.User.Name = "Mutated"
	reloaded, _, _ := storage.Load(context.Background())
	if reloaded.User.Name != "Kim" {
		t.Fatalf("storage must hand out copies, got %q", reloaded.User.Name)
	}

	if clearErr := storage.Clear(context.Background()); clearErr != nil {
		t.Fatalf("clear error: %v", clearErr)
	}
	if _, present, _ := storage.Load(context.Background()); present {
		t.Fatalf("expected storage empty after clear")
	}
}

func TestDatabaseStateStorageRoundTrip(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "state.db")
	storage, storageErr := NewDatabaseStateStorage(context.Background(), statePath, DefaultStateNamespace)
	if storageErr != nil {
		t.Fatalf("open error: %v", storageErr)
	}

	if _, present, _ := storage.Load(context.Background()); present {
		t.Fatalf("fresh storage must be empty")
	}

	profile := UserProfile{ID: "user-1", Email: "kim@example.com", Name: "Kim"}
	if saveErr := storage.Save(context.Background(), PersistedState{
		RefreshToken:    "refresh-token",
		User:            &profile,
		IsAuthenticated: true,
	}); saveErr != nil {
		t.Fatalf("save error: %v", saveErr)
	}

	// Saving again must upsert, not duplicate.
	if saveErr := storage.Save(context.Background(), PersistedState{
		RefreshToken:    "rotated-token",
		User:            &profile,
		IsAuthenticated: true,
	}); saveErr != nil {
		t.Fatalf("second save error: %v", saveErr)
	}

	reopened, reopenErr := NewDatabaseStateStorage(context.Background(), statePath, DefaultStateNamespace)
	if reopenErr != nil {
		t.Fatalf("reopen error: %v", reopenErr)
	}
	loaded, present, loadErr := reopened.Load(context.Background())
	if loadErr != nil || !present {
		t.Fatalf("load error: %v present %v", loadErr, present)
	}
	if loaded.RefreshToken != "rotated-token" || loaded.User == nil || loaded.User.Email != "kim@example.com" {
		t.Fatalf("unexpected loaded state: %+v", loaded)
	}

	if clearErr := reopened.Clear(context.Background()); clearErr != nil {
		t.Fatalf("clear error: %v", clearErr)
	}
	if _, present, _ := reopened.Load(context.Background()); present {
		t.Fatalf("expected storage empty after clear")
	}
}

func TestDatabaseStateStorageIsolatesNamespaces(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "state.db")
	first, firstErr := NewDatabaseStateStorage(context.Background(), statePath, "app-one")
	if firstErr != nil {
		t.Fatalf("open error: %v", firstErr)
	}
	second, secondErr := NewDatabaseStateStorage(context.Background(), statePath, "app-two")
	if secondErr != nil {
		t.Fatalf("open error: %v", secondErr)
	}

	if saveErr := first.Save(context.Background(), PersistedState{RefreshToken: "token-one", IsAuthenticated: true}); saveErr != nil {
		t.Fatalf("save error: %v", saveErr)
	}

	if _, present, _ := second.Load(context.Background()); present {
		t.Fatalf("namespaces must not see each other's rows")
	}
}

func TestNewDatabaseStateStorageRejectsBlankInputs(t *testing.T) {
	t.Parallel()

	if _, err := NewDatabaseStateStorage(context.Background(), "  ", DefaultStateNamespace); err == nil {
		t.Fatalf("expected error for blank path")
	}
	statePath := filepath.Join(t.TempDir(), "state.db")
	if _, err := NewDatabaseStateStorage(context.Background(), statePath, "  "); err == nil {
		t.Fatalf("expected error for blank namespace")
	}
}
