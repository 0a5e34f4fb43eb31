package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/mcpexec/internal/harness"
)

// harnessCmd is the child side of a sandboxed run. The sandbox re-executes
// this binary as "mcpexec harness <flags> <artifact>".
func harnessCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "harness",
		Hidden:             true,
		DisableFlagParsing: true,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(harness.Main(args, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()))
		},
	}
}
