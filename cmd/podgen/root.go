package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newRootCommand creates the root command for podgen
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "podgen",
		Short: "podgen - podcast script generation",
		Long: `podgen turns a list of news articles into a radio script.

Each article is summarized in parallel, then a single synthesis step writes
the full episode script. Configuration is read from environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newGenerateCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "podgen %s (built %s)\n", Version, BuildTime)
		},
	}
}
