package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// compose runs "docker compose -f <file> args...".
func compose(ctx context.Context, args ...string) error {
	return runCommand(ctx, "docker", append([]string{"compose", "-f", composeFile}, args...)...)
}

func newBuildCmd() *cobra.Command {
	var noCache bool
	cmd := &cobra.Command{
		Use:   "build [service...]",
		Short: "Pull and build the compose services",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"build"}
			if noCache {
				composeArgs = append(composeArgs, "--no-cache")
			}
			return compose(cmd.Context(), append(composeArgs, args...)...)
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable Docker build cache")
	return cmd
}

func newUpCmd() *cobra.Command {
	var detach, infraOnly bool
	cmd := &cobra.Command{
		Use:   "up [service...]",
		Short: "Start Postgres, Redis, MinIO, Mailpit and the binaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"up"}
			if detach {
				composeArgs = append(composeArgs, "-d")
			}
			if infraOnly && len(args) == 0 {
				args = []string{"postgres", "redis", "minio", "mailpit"}
			}
			return compose(cmd.Context(), append(composeArgs, args...)...)
		},
	}
	cmd.Flags().BoolVarP(&detach, "detached", "d", true, "Run docker compose in detached mode")
	cmd.Flags().BoolVar(&infraOnly, "infra", false, "Start only the backing services, for running the binaries locally")
	return cmd
}

func newDownCmd() *cobra.Command {
	var removeVolumes bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the compose stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			if removeVolumes {
				return compose(cmd.Context(), "down", "-v")
			}
			return compose(cmd.Context(), "down")
		},
	}
	cmd.Flags().BoolVarP(&removeVolumes, "volumes", "v", false, "Drop the database and bucket volumes too")
	return cmd
}

func newLogsCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs [service...]",
		Short: "Show logs from compose services",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"logs"}
			if follow {
				composeArgs = append(composeArgs, "--follow")
			}
			return compose(cmd.Context(), append(composeArgs, args...)...)
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "Stream logs continuously")
	return cmd
}

func newPsqlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "psql",
		Short: "Open psql against the compose database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return compose(cmd.Context(), append([]string{"exec", "postgres", "psql", "-U", "afe", "afe"}, args...)...)
		},
	}
}

func newTestCmd() *cobra.Command {
	var race, cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			if len(args) == 0 {
				args = []string{"./..."}
			}
			return runCommand(cmd.Context(), "go", append(goArgs, args...)...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable Go race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a binary with go run",
	}
	for _, name := range []string{"server", "worker"} {
		path := "./cmd/" + name
		cmd.AddCommand(&cobra.Command{
			Use:                name + " [flags]",
			Short:              fmt.Sprintf("go run %s", path),
			DisableFlagParsing: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd.Context(), "go", append([]string{"run", path}, args...)...)
			},
		})
	}
	return cmd
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
