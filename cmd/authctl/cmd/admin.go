// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haii/authcore/internal/platform/sec"
	"github.com/haii/authcore/internal/users/account"
	"github.com/haii/authcore/pkg/pointer"
)

var bootstrapAdminCmd = &cobra.Command{
	Use:   "bootstrap-admin",
	Short: "Create the configured admin identity if it does not exist",
	Long: `Creates HAII_ADMIN_EMAIL with HAII_ADMIN_PASSWORD and the admin role.
An existing identity under that email is left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openPool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		accounts := account.NewService(account.NewPostgresRepository(pool), sec.NewPasswordHasher(cfg.BcryptWorkFactor), logger)
		admin, err := accounts.EnsureAdmin(cmd.Context(), cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "admin %s (%s)\n", pointer.Val(admin.Email), admin.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bootstrapAdminCmd)
}
