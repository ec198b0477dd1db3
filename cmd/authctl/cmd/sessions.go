// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haii/authcore/internal/platform/sec"
	"github.com/haii/authcore/internal/users/auth"
	"github.com/haii/authcore/internal/users/session"
)

var purgeRetention time.Duration

var revokeSessionsCmd = &cobra.Command{
	Use:   "revoke-sessions EMAIL",
	Short: "Sign an identity out of every browser session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openPool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		codec, err := sec.NewCodec(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.AccessTTL())
		if err != nil {
			return err
		}

		windows := session.NewWindows(nil)
		sessions := session.NewSessions(session.Policy{Rolling: cfg.RollingTTL(), Absolute: cfg.AbsoluteTTL()}, windows, nil, nil)
		credentials := session.NewCredentials(cfg.RefreshTTL(), nil, nil)
		service := auth.NewService(auth.Dependencies{
			Store:       session.NewPostgresStore(pool),
			Sessions:    sessions,
			Windows:     windows,
			Credentials: credentials,
			Issuer:      auth.NewIssuer(codec, credentials),
			Hasher:      sec.NewPasswordHasher(cfg.BcryptWorkFactor),
		})

		count, err := service.RevokeSessions(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "revoked %d session(s)\n", count)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired refresh credentials and long-dead sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if purgeRetention < 0 {
			return fmt.Errorf("--retention must not be negative")
		}

		pool, err := openPool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		result, err := session.NewPostgresStore(pool).Purge(cmd.Context(), time.Now().UTC(), purgeRetention)
		if err != nil {
			return err
		}

		logger.Info("purge_completed",
			"refresh_credentials", result.RefreshCredentials,
			"sessions", result.Sessions,
			"windows_closed", result.Windows,
			"retention", purgeRetention,
		)
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d refresh credential(s) and %d session(s), closed %d window(s)\n",
			result.RefreshCredentials, result.Sessions, result.Windows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(revokeSessionsCmd, purgeCmd)
	purgeCmd.Flags().DurationVar(&purgeRetention, "retention", 7*24*time.Hour, "Keep ended sessions this long before deleting them")
}
