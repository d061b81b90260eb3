package userstore

import (
	"context"
	"errors"
)

// UserRecord is the persisted application user. The password hash never
// leaves this package boundary except through the record itself; handlers
// must project it into a profile before responding.
type UserRecord struct {
	ID            string
	Email         string
	PasswordHash  string
	DisplayName   string
	CreatedAtUnix int64
}

var (
	// ErrEmailTaken indicates a create collided with an existing email.
	ErrEmailTaken = errors.New("user_store.email_taken")
	// ErrUserNotFound indicates no user matched the lookup.
	ErrUserNotFound = errors.New("user_store.not_found")
	// ErrEmptyEmail indicates a lookup or create with an empty email.
	ErrEmptyEmail = errors.New("user_store.empty_email")
)

// UserStore persists and retrieves application users. Email uniqueness is
// enforced at the storage layer so concurrent signups with the same email
// admit at most one winner.
type UserStore interface {
	Create(ctx context.Context, record UserRecord) (UserRecord, error)
	FindByEmail(ctx context.Context, email string) (UserRecord, error)
	FindByID(ctx context.Context, userID string) (UserRecord, error)
}
