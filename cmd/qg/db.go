package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/qualitygate/internal/config"
	"github.com/zulandar/qualitygate/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBCreateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update all tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Quality Gate config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, _, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables on %s\n", len(db.AllModels()), cfg.Database.Driver)
	return nil
}

func newDBCreateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the MySQL database if it does not exist",
		Long:  "Connects to the MySQL server without selecting a database and runs CREATE DATABASE IF NOT EXISTS. SQLite and PostgreSQL databases are created by their own tooling.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBCreate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Quality Gate config file")
	return cmd
}

func runDBCreate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.Driver != "mysql" {
		return fmt.Errorf("db create only supports mysql, config uses %s", cfg.Database.Driver)
	}

	adminDB, err := db.ConnectAdmin(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.CreateDatabase(adminDB, cfg.Database.Name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Database %s ready\n", cfg.Database.Name)
	return nil
}
