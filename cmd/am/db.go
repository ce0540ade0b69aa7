package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/airminal/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the settings tables",
		Long:  "Connects to the configured storage (sqlite or mysql) and migrates the settings and automation run tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "airminal.yaml", "path to Airminal config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	gormDB, err := db.Connect(cfg.Storage)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	target := cfg.Storage.Path
	if cfg.Storage.Driver == "mysql" {
		target = "mysql"
	}
	fmt.Fprintf(out, "Migrated %d tables in %s\n", len(db.AllModels()), target)
	return nil
}
