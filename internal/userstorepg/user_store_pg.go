package userstorepg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pangmarket/authd/internal/userstore"
)

const uniqueViolationCode = "23505"

// PostgresUserStore persists users in PostgreSQL through a native pgx pool.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

// NewPostgresUserStore constructs a Postgres store.
func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

// Create inserts a new user row, surfacing a unique violation on email as
// userstore.ErrEmailTaken.
func (store *PostgresUserStore) Create(ctx context.Context, record userstore.UserRecord) (userstore.UserRecord, error) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(record.Email))
	if normalizedEmail == "" {
		return userstore.UserRecord{}, fmt.Errorf("user_store.create.pgx: %w", userstore.ErrEmptyEmail)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAtUnix == 0 {
		record.CreatedAtUnix = time.Now().UTC().Unix()
	}
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO users (user_id, email, password_hash, display_name, created_at_unix)
VALUES ($1, $2, $3, $4, $5)
`, record.ID, normalizedEmail, record.PasswordHash, record.DisplayName, record.CreatedAtUnix)
	if execErr != nil {
		var pgErr *pgconn.PgError
		if errors.As(execErr, &pgErr) && pgErr.Code == uniqueViolationCode {
			return userstore.UserRecord{}, fmt.Errorf("user_store.create.pgx: %w", userstore.ErrEmailTaken)
		}
		return userstore.UserRecord{}, fmt.Errorf("user_store.create.pgx: %w", execErr)
	}
	record.Email = normalizedEmail
	return record, nil
}

// FindByEmail locates a user row by its unique email.
func (store *PostgresUserStore) FindByEmail(ctx context.Context, email string) (userstore.UserRecord, error) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if normalizedEmail == "" {
		return userstore.UserRecord{}, fmt.Errorf("user_store.find_by_email.pgx: %w", userstore.ErrEmptyEmail)
	}
	row := store.pool.QueryRow(ctx, `
SELECT user_id, email, password_hash, display_name, created_at_unix
FROM users
WHERE email = $1
`, normalizedEmail)
	return scanUserRow(row, "user_store.find_by_email.pgx")
}

// FindByID locates a user row by its identifier.
func (store *PostgresUserStore) FindByID(ctx context.Context, userID string) (userstore.UserRecord, error) {
	row := store.pool.QueryRow(ctx, `
SELECT user_id, email, password_hash, display_name, created_at_unix
FROM users
WHERE user_id = $1
`, userID)
	return scanUserRow(row, "user_store.find_by_id.pgx")
}

func scanUserRow(row pgx.Row, code string) (userstore.UserRecord, error) {
	var record userstore.UserRecord
	scanErr := row.Scan(&record.ID, &record.Email, &record.PasswordHash, &record.DisplayName, &record.CreatedAtUnix)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return userstore.UserRecord{}, fmt.Errorf("%s: %w", code, userstore.ErrUserNotFound)
		}
		return userstore.UserRecord{}, fmt.Errorf("%s: %w", code, scanErr)
	}
	return record, nil
}
