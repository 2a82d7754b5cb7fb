// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// migrateConfig holds flags for the migrate subcommands.
type migrateConfig struct {
	steps int
	all   bool
}

// newMigrateCmd creates the migrate command and its subcommands.
func newMigrateCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long: `Manage the users, refresh_tokens and otp_codes schema. Without a
subcommand, applies all pending migrations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				return migrateUp(cmd, m, 0)
			})
		},
	}

	cmd.AddCommand(newMigrateUpCmd(deps))
	cmd.AddCommand(newMigrateDownCmd(deps))
	cmd.AddCommand(newMigrateVersionCmd(deps))
	cmd.AddCommand(newMigrateStatusCmd(deps))
	cmd.AddCommand(newMigrateForceCmd(deps))
	return cmd
}

func newMigrateUpCmd(deps *Deps) *cobra.Command {
	cfg := &migrateConfig{}
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.steps < 0 {
				return oops.Code("INVALID_STEPS").Errorf("--steps must be positive")
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				return migrateUp(cmd, m, cfg.steps)
			})
		},
	}
	cmd.Flags().IntVar(&cfg.steps, "steps", 0, "apply at most this many migrations (0 = all)")
	return cmd
}

func migrateUp(cmd *cobra.Command, m Migrator, steps int) error {
	cmd.Println("Running migrations...")
	var err error
	if steps > 0 {
		err = m.Steps(steps)
	} else {
		err = m.Up()
	}
	if err != nil {
		return err
	}
	return printVersion(cmd, m, "Migrations completed successfully")
}

func newMigrateDownCmd(deps *Deps) *cobra.Command {
	cfg := &migrateConfig{}
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back --steps migrations, or every migration with --all.
Rolling back drops stored users, refresh tokens and OTP challenges.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case cfg.all && cfg.steps != 0:
				return oops.Code("INVALID_STEPS").Errorf("--all and --steps are mutually exclusive")
			case !cfg.all && cfg.steps <= 0:
				return oops.Code("INVALID_STEPS").Errorf("pass --steps N or --all")
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				cmd.Println("Rolling back migrations...")
				var err error
				if cfg.all {
					err = m.Down()
				} else {
					err = m.Steps(-cfg.steps)
				}
				if err != nil {
					return err
				}
				return printVersion(cmd, m, "Rollback completed successfully")
			})
		},
	}
	cmd.Flags().IntVar(&cfg.steps, "steps", 0, "number of migrations to roll back")
	cmd.Flags().BoolVar(&cfg.all, "all", false, "roll back every migration")
	return cmd
}

func newMigrateVersionCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				return printVersion(cmd, m, "")
			})
		},
	}
}

func newMigrateStatusCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				status, err := m.Status()
				if err != nil {
					return err
				}
				cmd.Print(formatMigrationStatus(status))
				return nil
			})
		},
	}
}

func newMigrateForceCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied and clear the dirty flag",
		Long: `Record VERSION as the applied schema version without running any
migration. Use only after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				return printVersion(cmd, m, "Version forced")
			})
		},
	}
}

// parseForceVersion parses a non-negative schema version.
func parseForceVersion(s string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative")
	}
	return version, nil
}

// withMigrator loads configuration, opens a migrator and closes it after fn.
func withMigrator(cmd *cobra.Command, deps *Deps, fn func(Migrator) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	m, err := deps.NewMigrator(cfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

func printVersion(cmd *cobra.Command, m Migrator, prefix string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	line := "schema version " + strconv.FormatUint(uint64(version), 10)
	if dirty {
		line += " (dirty)"
	}
	if prefix != "" {
		line = prefix + ": " + line
	}
	cmd.Println(line)
	return nil
}
