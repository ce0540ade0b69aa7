package automation

import (
	"context"
	"fmt"

	"github.com/zulandar/airminal/internal/models"
	"gorm.io/gorm"
)

// DefaultRunLimit is how many runs History.List returns when no limit is
// given.
const DefaultRunLimit = 20

// History stores automation runs.
type History interface {
	Record(ctx context.Context, run *models.AutomationRun) error
	List(ctx context.Context, automationID string, limit int) ([]models.AutomationRun, error)
}

// GormHistory keeps runs in the automation_runs table.
type GormHistory struct {
	db *gorm.DB
}

// NewGormHistory returns a History backed by db.
func NewGormHistory(db *gorm.DB) (*GormHistory, error) {
	if db == nil {
		return nil, fmt.Errorf("automation: history: db is required")
	}
	return &GormHistory{db: db}, nil
}

func (h *GormHistory) Record(ctx context.Context, run *models.AutomationRun) error {
	if err := h.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("automation: record run: %w", err)
	}
	return nil
}

// List returns the most recent runs of automationID, newest first.
func (h *GormHistory) List(ctx context.Context, automationID string, limit int) ([]models.AutomationRun, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	var runs []models.AutomationRun
	err := h.db.WithContext(ctx).
		Where("automation_id = ?", automationID).
		Order("started_at DESC, id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("automation: list runs: %w", err)
	}
	return runs, nil
}
