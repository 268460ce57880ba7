// Command controlplane runs the control plane: the Request Router, the
// Worker Runtime, the Channel Supervisor and their supporting cron tasks.
// Grounded on the teacher's flag-based cmd/tarsy/main.go for component
// wiring order and on arkeep-io-arkeep/server/cmd/server/main.go for the
// cobra root-command/persistent-flags/signal.NotifyContext shape, since
// spf13/cobra is a direct dependency here with no usage site in the
// teacher's own main.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "controlplane",
		Short: "Control plane for autonomous agents",
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", envOrDefault("CONFIG_PATH", ""), "path to a YAML config file (optional; env vars and defaults apply regardless)")
	var logLevel string
	root.PersistentFlags().StringVar(&logLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "debug, info, warn, or error")

	root.AddCommand(newServeCmd(&configPath, &logLevel))
	root.AddCommand(newMigrateCmd(&configPath, &logLevel))
	root.AddCommand(newWorkerHealthCmd(&configPath, &logLevel))
	return root
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
