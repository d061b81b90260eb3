package userstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryUserStore is an in-memory store intended for tests and dev runs.
type MemoryUserStore struct {
	mutex   sync.Mutex
	byID    map[string]UserRecord
	byEmail map[string]string
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]UserRecord),
		byEmail: make(map[string]string),
	}
}

// Create inserts a new user, rejecting duplicate emails.
func (store *MemoryUserStore) Create(ctx context.Context, record UserRecord) (UserRecord, error) {
	normalizedEmail := normalizeEmail(record.Email)
	if normalizedEmail == "" {
		return UserRecord{}, fmt.Errorf("user_store.create: %w", ErrEmptyEmail)
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, exists := store.byEmail[normalizedEmail]; exists {
		return UserRecord{}, fmt.Errorf("user_store.create: %w", ErrEmailTaken)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.Email = normalizedEmail
	if record.CreatedAtUnix == 0 {
		record.CreatedAtUnix = time.Now().UTC().Unix()
	}
	store.byID[record.ID] = record
	store.byEmail[normalizedEmail] = record.ID
	return record, nil
}

// FindByEmail returns the user registered under the email.
func (store *MemoryUserStore) FindByEmail(ctx context.Context, email string) (UserRecord, error) {
	normalizedEmail := normalizeEmail(email)
	if normalizedEmail == "" {
		return UserRecord{}, fmt.Errorf("user_store.find_by_email: %w", ErrEmptyEmail)
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	userID, ok := store.byEmail[normalizedEmail]
	if !ok {
		return UserRecord{}, fmt.Errorf("user_store.find_by_email: %w", ErrUserNotFound)
	}
	record, ok := store.byID[userID]
	if !ok {
		return UserRecord{}, fmt.Errorf("user_store.find_by_email: %w", ErrUserNotFound)
	}
	return record, nil
}

// FindByID returns the user with the given identifier.
func (store *MemoryUserStore) FindByID(ctx context.Context, userID string) (UserRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record, ok := store.byID[userID]
	if !ok {
		return UserRecord{}, fmt.Errorf("user_store.find_by_id: %w", ErrUserNotFound)
	}
	return record, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
