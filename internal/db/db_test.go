package db

import (
	"strings"
	"testing"

	"github.com/zulandar/airminal/internal/config"
	"github.com/zulandar/airminal/internal/models"
)

func TestConnect_SQLiteMemory(t *testing.T) {
	gdb, err := Connect(config.StorageConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}
}

func TestAutoMigrate_Idempotent(t *testing.T) {
	gdb, err := Connect(config.StorageConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := AutoMigrate(gdb); err != nil {
			t.Fatalf("AutoMigrate #%d: %v", i+1, err)
		}
	}
	rec := models.SettingsRecord{Name: "k", Data: "{}"}
	if err := gdb.Create(&rec).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := models.SettingsRecord{Name: "k", Data: "{}"}
	if err := gdb.Create(&dup).Error; err == nil {
		t.Error("expected unique index violation on settings key")
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 2 {
		t.Errorf("len(AllModels()) = %d, want 2", got)
	}
}

func TestConnect_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StorageConfig
		want string
	}{
		{"unknown driver", config.StorageConfig{Driver: "postgres"}, `unsupported driver "postgres"`},
		{"mysql without dsn", config.StorageConfig{Driver: "mysql"}, "mysql dsn is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Connect(tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err, tt.want)
			}
		})
	}
}
