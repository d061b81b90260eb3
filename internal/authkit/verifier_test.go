package authkit

import (
	"context"
	"errors"
	"testing"

	"github.com/pangmarket/authd/internal/userstore"
)

func seedUser(t *testing.T, users *userstore.MemoryUserStore, email string, password string, name string) userstore.UserRecord {
	t.Helper()
	passwordHash, hashErr := HashPassword(password)
	if hashErr != nil {
		t.Fatalf("hash error: %v", hashErr)
	}
	record, createErr := users.Create(context.Background(), userstore.UserRecord{
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  name,
	})
	if createErr != nil {
		t.Fatalf("create error: %v", createErr)
	}
	return record
}

func TestCredentialVerifierMatchesPassword(t *testing.T) {
	t.Parallel()

	users := userstore.NewMemoryUserStore()
	seeded := seedUser(t, users, "kim@example.com", "abc123", "Kim")
	verifier := NewCredentialVerifier(users)

	record, verifyErr := verifier.Verify(context.Background(), "kim@example.com", "abc123")
	if verifyErr != nil {
		t.Fatalf("verify error: %v", verifyErr)
	}
	if record.ID != seeded.ID {
		t.Fatalf("expected user %q, got %q", seeded.ID, record.ID)
	}
}

func TestCredentialVerifierRejectsUnknownEmail(t *testing.T) {
	t.Parallel()

	verifier := NewCredentialVerifier(userstore.NewMemoryUserStore())
	_, verifyErr := verifier.Verify(context.Background(), "nobody@example.com", "abc123")
	if !errors.Is(verifyErr, ErrCredentialsNotFound) {
		t.Fatalf("expected ErrCredentialsNotFound, got %v", verifyErr)
	}
}

func TestCredentialVerifierRejectsWrongPassword(t *testing.T) {
	t.Parallel()

	users := userstore.NewMemoryUserStore()
	seedUser(t, users, "kim@example.com", "abc123", "Kim")
	verifier := NewCredentialVerifier(users)

	_, verifyErr := verifier.Verify(context.Background(), "kim@example.com", "wrong-password")
	if !errors.Is(verifyErr, ErrCredentialsInvalidPassword) {
		t.Fatalf("expected ErrCredentialsInvalidPassword, got %v", verifyErr)
	}
}

func TestHashPasswordRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	if _, err := HashPassword("  "); err == nil {
		t.Fatalf("expected error for blank password")
	}
}
