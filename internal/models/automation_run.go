package models

import "time"

// AutomationRun records one attempt of a scheduled or manual automation.
type AutomationRun struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	AutomationID string `gorm:"size:64;not null;index"`
	Trigger      string `gorm:"size:16;default:schedule"` // schedule | manual
	Success      bool   `gorm:"default:false;index"`
	Error        string `gorm:"type:text"`
	Message      string `gorm:"type:text"`
	Caption      string `gorm:"type:text"`
	ImageURL     string `gorm:"type:text"`
	StartedAt    time.Time
	FinishedAt   time.Time
}
