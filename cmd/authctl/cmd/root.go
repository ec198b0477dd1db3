// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/haii/authcore/internal/platform/config"
	"github.com/haii/authcore/internal/platform/constants"
	pgstore "github.com/haii/authcore/internal/platform/postgres"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "authctl",
	Short:         "Operator tools for the authentication service",
	Long:          `Maintenance commands that share the service's HAII_ environment configuration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		level := slog.LevelInfo
		if cfg.Debug {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})).
			With(slog.String(constants.FieldApp, "authctl"))
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		os.Exit(1)
	}
}

// openPool connects with the small operator pool size. Callers close it.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL, pgstore.ToolPoolSize, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return pool, nil
}
