package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zulandar/airminal/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordKey names the settings record that holds the configuration.
const RecordKey = "airminalConfig"

// Store persists the configuration.
type Store interface {
	// Load returns the stored configuration merged over the defaults. found
	// is false when nothing has been saved yet.
	Load(ctx context.Context) (cfg GlobalConfig, found bool, err error)
	Save(ctx context.Context, cfg GlobalConfig) error
}

// GormStore keeps the configuration as one JSON row in settings_records.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore returns a store backed by db. The table must already exist.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("settings: store: db is required")
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Load(ctx context.Context) (GlobalConfig, bool, error) {
	var rec models.SettingsRecord
	err := s.db.WithContext(ctx).Where("name = ?", RecordKey).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Defaults(), false, nil
	}
	if err != nil {
		return GlobalConfig{}, false, fmt.Errorf("settings: load: %w", err)
	}
	cfg, err := Merge(Defaults(), []byte(rec.Data))
	if err != nil {
		return GlobalConfig{}, false, fmt.Errorf("settings: load: %w", err)
	}
	return cfg, true, nil
}

func (s *GormStore) Save(ctx context.Context, cfg GlobalConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("settings: save: marshal: %w", err)
	}
	rec := models.SettingsRecord{Name: RecordKey, Data: string(data)}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&rec)
	if result.Error != nil {
		return fmt.Errorf("settings: save: %w", result.Error)
	}
	return nil
}
