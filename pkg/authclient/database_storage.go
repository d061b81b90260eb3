package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DefaultStateNamespace scopes the persisted record so several apps can
// share one state file.
const DefaultStateNamespace = "pang-market-auth"

var (
	errEmptyStatePath      = errors.New("state_storage.empty_path")
	errEmptyStateNamespace = errors.New("state_storage.empty_namespace")
)

// DatabaseStateStorage persists the session record as a single namespaced
// row in a local sqlite file.
type DatabaseStateStorage struct {
	db        *gorm.DB
	namespace string
}

type authStateRow struct {
	Namespace       string `gorm:"column:namespace;primaryKey"`
	RefreshToken    string `gorm:"column:refresh_token;not null;default:''"`
	UserJSON        string `gorm:"column:user_json;not null;default:''"`
	IsAuthenticated bool   `gorm:"column:is_authenticated;not null;default:false"`
}

func (authStateRow) TableName() string {
	return "auth_state"
}

// NewDatabaseStateStorage opens (and migrates) the sqlite file at path.
func NewDatabaseStateStorage(ctx context.Context, path string, namespace string) (*DatabaseStateStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("state_storage.open: %w", errEmptyStatePath)
	}
	if strings.TrimSpace(namespace) == "" {
		return nil, fmt.Errorf("state_storage.open: %w", errEmptyStateNamespace)
	}
	gormDB, openErr := gorm.Open(sqliteDialector.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("state_storage.open: %w", openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&authStateRow{}); migrateErr != nil {
		return nil, fmt.Errorf("state_storage.migrate: %w", migrateErr)
	}
	return &DatabaseStateStorage{
		db:        gormDB,
		namespace: namespace,
	}, nil
}

// Save upserts the namespaced row.
func (storage *DatabaseStateStorage) Save(ctx context.Context, state PersistedState) error {
	userJSON := ""
	if state.User != nil {
		encoded, encodeErr := json.Marshal(state.User)
		if encodeErr != nil {
			return fmt.Errorf("state_storage.save: %w", encodeErr)
		}
		userJSON = string(encoded)
	}
	row := authStateRow{
		Namespace:       storage.namespace,
		RefreshToken:    state.RefreshToken,
		UserJSON:        userJSON,
		IsAuthenticated: state.IsAuthenticated,
	}
	err := storage.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("state_storage.save: %w", err)
	}
	return nil
}

// Load reads the namespaced row if present.
func (storage *DatabaseStateStorage) Load(ctx context.Context) (PersistedState, bool, error) {
	var row authStateRow
	err := storage.db.WithContext(ctx).Where("namespace = ?", storage.namespace).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PersistedState{}, false, nil
		}
		return PersistedState{}, false, fmt.Errorf("state_storage.load: %w", err)
	}
	state := PersistedState{
		RefreshToken:    row.RefreshToken,
		IsAuthenticated: row.IsAuthenticated,
	}
	if row.UserJSON != "" {
		var profile UserProfile
		if decodeErr := json.Unmarshal([]byte(row.UserJSON), &profile); decodeErr != nil {
			return PersistedState{}, false, fmt.Errorf("state_storage.load: %w", decodeErr)
		}
		state.User = &profile
	}
	return state, true, nil
}

// Clear deletes the namespaced row.
func (storage *DatabaseStateStorage) Clear(ctx context.Context) error {
	err := storage.db.WithContext(ctx).Where("namespace = ?", storage.namespace).Delete(&authStateRow{}).Error
	if err != nil {
		return fmt.Errorf("state_storage.clear: %w", err)
	}
	return nil
}
