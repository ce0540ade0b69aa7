package models

import "time"

// SettingsRecord stores one named JSON settings document. Airminal keeps its
// whole runtime configuration under a single key.
type SettingsRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:64;uniqueIndex;not null"`
	Data      string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}
