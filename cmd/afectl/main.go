package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var composeFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "afectl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "afectl",
		Short: "AFE approval service CLI",
		Long: `afectl drives the docker-compose development stack, prepares the database,
mints development tokens and exposes the placement and PDF tooling used by the service.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use for stack commands")
	cmd.AddCommand(
		newBuildCmd(),
		newUpCmd(),
		newDownCmd(),
		newLogsCmd(),
		newPsqlCmd(),
		newTestCmd(),
		newRunCmd(),
		newMigrateCmd(),
		newSeedAdminCmd(),
		newTokenCmd(),
		newCoordsCmd(),
		newPDFCmd(),
	)
	return cmd
}
