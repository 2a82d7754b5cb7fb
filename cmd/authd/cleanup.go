// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const defaultRetention = 24 * time.Hour

// cleanupConfig holds configuration for the cleanup command.
type cleanupConfig struct {
	retention time.Duration
}

// newCleanupCmd creates the cleanup subcommand.
func newCleanupCmd(deps *Deps) *cobra.Command {
	cfg := &cleanupConfig{}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired refresh tokens and OTP challenges",
		Long: `Delete refresh tokens past their expiry, and OTP challenges that
expired more than --retention ago. Intended to run from cron or a job
scheduler; the server never prunes on its own.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCleanup(cmd, deps, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.retention, "retention", defaultRetention,
		"how long to keep expired OTP challenges")

	return cmd
}

func runCleanup(cmd *cobra.Command, deps *Deps, cc *cleanupConfig) error {
	if cc.retention < 0 {
		return oops.Code("INVALID_RETENTION").With("retention", cc.retention).Errorf("--retention cannot be negative")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	if err := cfg.RequireTokenSecret(); err != nil {
		return err
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool, err := deps.OpenPool(ctx, cfg.Database.URL, cfg.Database.ConnectTimeout)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	svc, err := buildService(cfg, pool, logger, nil)
	if err != nil {
		return err
	}
	result, err := svc.Cleanup(ctx, cc.retention)
	if err != nil {
		return err
	}

	logger.Info("cleanup complete",
		"refresh_tokens", result.RefreshTokens,
		"otp_challenges", result.OTPChallenges,
		"retention", cc.retention,
	)
	cmd.Printf("Deleted %d refresh tokens and %d OTP challenges\n", result.RefreshTokens, result.OTPChallenges)
	return nil
}
