// Package db opens the settings database and migrates its tables.
package db

import (
	"fmt"

	"github.com/zulandar/airminal/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens a GORM connection for the configured storage driver.
func Connect(cfg config.StorageConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "airminal.db"
		}
		dialector = sqlite.Open(path)
	case "mysql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("db: connect: mysql dsn is required")
		}
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("db: connect: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect %s: %w", describe(cfg), err)
	}
	if cfg.Driver == "" || cfg.Driver == "sqlite" {
		// sqlite serializes writers anyway; one connection also keeps
		// ":memory:" databases from splitting per connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("db: connect %s: %w", describe(cfg), err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func describe(cfg config.StorageConfig) string {
	if cfg.Driver == "mysql" {
		return "mysql"
	}
	return "sqlite " + cfg.Path
}
