// Package main provides the entry point for the fiberplan service binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fiberplan/cmd/fiberplan/commands"
	"github.com/Sumatoshi-tech/fiberplan/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fiberplan",
		Short: "Fiberplan - constrained last-mile fiber route planning service",
		Long: `Fiberplan serves constrained consumer-to-fiber routes over a PostGIS +
pgRouting road model, and processes large coordinate batches as
asynchronous chunked jobs.

Commands:
  serve     Run the HTTP service`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "fiberplan %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
