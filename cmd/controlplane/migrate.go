package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/agentctl/internal/config"
	"github.com/codeready-toolchain/agentctl/internal/store"
)

// newMigrateCmd applies pending golang-migrate migrations and exits.
// store.Open already runs migrations as part of connecting, so this
// subcommand exists for operators who want the migration step to happen
// (and be visible in their deploy logs) separately from starting traffic.
func newMigrateCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := buildLogger(*logLevel); err != nil {
				return err
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			db, err := store.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Println("migrations applied")
			return nil
		},
	}
}
