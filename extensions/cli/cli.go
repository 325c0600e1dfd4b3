/*
 * Copyright 2025 the strata authors.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cli provides a Cobra "db" command set for embedding database
// migration and health operations in application CLIs.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strata-db/strata/database"
)

// NewDBCommand returns the "db" command with migrate, rollback, status,
// and health subcommands. The --config flag names a YAML configuration
// file; environment overrides still apply on top of it.
func NewDBCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database administration commands",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML database configuration")

	cmd.AddCommand(
		newMigrateCommand(&configPath),
		newRollbackCommand(&configPath),
		newStatusCommand(&configPath),
		newHealthCommand(&configPath),
	)
	return cmd
}

func openDatabase(configPath string) (*database.Config, error) {
	cfg, err := database.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	// The commands decide themselves whether to migrate.
	if _, err := database.InitDatabaseWithOptions(cfg, false); err != nil {
		return nil, err
	}
	return cfg, nil
}

func closeDatabase() {
	if err := database.CloseDB(); err != nil {
		database.GetLogger().Warn("Failed to close database", "error", err)
	}
}

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := openDatabase(*configPath); err != nil {
				return err
			}
			defer closeDatabase()

			mm := database.NewMigrationManager(database.GetDB(), database.GetLogger())
			if err := mm.RunMigrations(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		},
	}
}

func newRollbackCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Roll back the most recently applied migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := openDatabase(*configPath); err != nil {
				return err
			}
			defer closeDatabase()

			mm := database.NewMigrationManager(database.GetDB(), database.GetLogger())
			if err := mm.RollbackLast(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("last migration rolled back")
			return nil
		},
	}
}

func newStatusCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List known migrations and their applied state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := openDatabase(*configPath); err != nil {
				return err
			}
			defer closeDatabase()

			mm := database.NewMigrationManager(database.GetDB(), database.GetLogger())
			statuses, err := mm.Status(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range statuses {
				mark := " "
				applied := ""
				if s.Applied {
					mark = "x"
					applied = s.AppliedAt.Format("2006-01-02 15:04:05")
				}
				cmd.Printf("[%s] %s %-30s %s\n", mark, s.Version, s.Name, applied)
			}
			return nil
		},
	}
}

func newHealthCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database connectivity and report pool statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := openDatabase(*configPath); err != nil {
				return err
			}
			defer closeDatabase()

			status := database.GetHealthStatus(cmd.Context())
			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))
			if !status.Healthy {
				return fmt.Errorf("database unhealthy: %s", status.LastError)
			}
			return nil
		},
	}
}
