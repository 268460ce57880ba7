package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/agentctl/internal/config"
	"github.com/codeready-toolchain/agentctl/internal/store"
	"github.com/codeready-toolchain/agentctl/pkg/jobs"
)

// newWorkerHealthCmd prints a one-shot snapshot of job counts per status
// and the approval backlog, for an operator checking in on a deployment
// without standing up the full HTTP surface.
func newWorkerHealthCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker-health",
		Short: "Print job and approval backlog counts and exit",
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

			jobStore := jobs.New(db.Jobs)
			ctx := cmd.Context()
			for _, status := range []jobs.Status{
				jobs.StatusPending, jobs.StatusScheduled, jobs.StatusRunning,
				jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusDeadLetter,
			} {
				rows, err := jobStore.List(ctx, status, 10000)
				if err != nil {
					return err
				}
				fmt.Printf("%-12s %d\n", status, len(rows))
			}

			pending, err := db.Approvals.CountPending(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%-12s %d\n", "APPROVALS", pending)
			return nil
		},
	}
}
