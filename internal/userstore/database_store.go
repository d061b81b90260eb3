package userstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("user_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("user_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("user_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("user_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("user_store.unsupported_no_scheme")
)

// DatabaseUserStore persists users using GORM. Email uniqueness is a
// uniqueIndex so the database, not the application, arbitrates concurrent
// signups for the same address.
type DatabaseUserStore struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseUserStore) Driver() string {
	return store.driverLabel
}

type userRecordRow struct {
	UserID        string `gorm:"column:user_id;primaryKey"`
	Email         string `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash  string `gorm:"column:password_hash;not null"`
	DisplayName   string `gorm:"column:display_name;not null"`
	CreatedAtUnix int64  `gorm:"column:created_at_unix;not null"`
}

func (userRecordRow) TableName() string {
	return "users"
}

// NewDatabaseUserStore constructs a GORM-backed store from a database URL
// (postgres:// or sqlite://).
func NewDatabaseUserStore(ctx context.Context, databaseURL string) (*DatabaseUserStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("user_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if openErr != nil {
		return nil, fmt.Errorf("user_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&userRecordRow{}); migrateErr != nil {
		return nil, fmt.Errorf("user_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseUserStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// Create inserts a new user row. A unique-constraint violation on the email
// column surfaces as ErrEmailTaken.
func (store *DatabaseUserStore) Create(ctx context.Context, record UserRecord) (UserRecord, error) {
	normalizedEmail := normalizeEmail(record.Email)
	if normalizedEmail == "" {
		return UserRecord{}, fmt.Errorf("user_store.create.%s: %w", store.driverLabel, ErrEmptyEmail)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAtUnix == 0 {
		record.CreatedAtUnix = time.Now().UTC().Unix()
	}
	row := userRecordRow{
		UserID:        record.ID,
		Email:         normalizedEmail,
		PasswordHash:  record.PasswordHash,
		DisplayName:   record.DisplayName,
		CreatedAtUnix: record.CreatedAtUnix,
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return UserRecord{}, fmt.Errorf("user_store.create.%s: %w", store.driverLabel, ErrEmailTaken)
		}
		return UserRecord{}, fmt.Errorf("user_store.create.%s: %w", store.driverLabel, err)
	}
	record.Email = normalizedEmail
	return record, nil
}

// FindByEmail locates a user row by its unique email.
func (store *DatabaseUserStore) FindByEmail(ctx context.Context, email string) (UserRecord, error) {
	normalizedEmail := normalizeEmail(email)
	if normalizedEmail == "" {
		return UserRecord{}, fmt.Errorf("user_store.find_by_email.%s: %w", store.driverLabel, ErrEmptyEmail)
	}
	var row userRecordRow
	err := store.db.WithContext(ctx).Where("email = ?", normalizedEmail).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return UserRecord{}, fmt.Errorf("user_store.find_by_email.%s: %w", store.driverLabel, ErrUserNotFound)
		}
		return UserRecord{}, fmt.Errorf("user_store.find_by_email.%s: %w", store.driverLabel, err)
	}
	return rowToRecord(row), nil
}

// FindByID locates a user row by its identifier.
func (store *DatabaseUserStore) FindByID(ctx context.Context, userID string) (UserRecord, error) {
	var row userRecordRow
	err := store.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return UserRecord{}, fmt.Errorf("user_store.find_by_id.%s: %w", store.driverLabel, ErrUserNotFound)
		}
		return UserRecord{}, fmt.Errorf("user_store.find_by_id.%s: %w", store.driverLabel, err)
	}
	return rowToRecord(row), nil
}

func rowToRecord(row userRecordRow) UserRecord {
	return UserRecord{
		ID:            row.UserID,
		Email:         row.Email,
		PasswordHash:  row.PasswordHash,
		DisplayName:   row.DisplayName,
		CreatedAtUnix: row.CreatedAtUnix,
	}
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("user_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("user_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("user_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("user_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
