package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pangmarket/authd/internal/userstore"
)

var (
	// ErrCredentialsNotFound indicates no user is registered under the email.
	ErrCredentialsNotFound = errors.New("credential_verifier.not_found")
	// ErrCredentialsInvalidPassword indicates the password did not match the stored hash.
	ErrCredentialsInvalidPassword = errors.New("credential_verifier.invalid_password")
)

// CredentialVerifier checks submitted email/password pairs against the user
// store. The two failure modes stay distinct here; the HTTP boundary
// collapses both into one generic message so callers cannot probe which
// part was wrong.
type CredentialVerifier struct {
	users userstore.UserStore
}

// NewCredentialVerifier constructs a verifier bound to a user store.
func NewCredentialVerifier(users userstore.UserStore) *CredentialVerifier {
	return &CredentialVerifier{users: users}
}

// Verify returns the matching user record. The password hash is compared
// with bcrypt and never logged or returned outside the record.
func (verifier *CredentialVerifier) Verify(ctx context.Context, email string, password string) (userstore.UserRecord, error) {
	record, findErr := verifier.users.FindByEmail(ctx, email)
	if findErr != nil {
		if errors.Is(findErr, userstore.ErrUserNotFound) || errors.Is(findErr, userstore.ErrEmptyEmail) {
			return userstore.UserRecord{}, fmt.Errorf("credential_verifier.verify: %w", ErrCredentialsNotFound)
		}
		return userstore.UserRecord{}, fmt.Errorf("credential_verifier.verify: %w", findErr)
	}
	if compareErr := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); compareErr != nil {
		return userstore.UserRecord{}, fmt.Errorf("credential_verifier.verify: %w", ErrCredentialsInvalidPassword)
	}
	return record, nil
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("credential_verifier.hash: password must be non-empty")
	}
	hashBytes, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if hashErr != nil {
		return "", fmt.Errorf("credential_verifier.hash: %w", hashErr)
	}
	return string(hashBytes), nil
}
