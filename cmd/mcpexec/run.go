package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flemzord/mcpexec/internal/engine"
	"github.com/flemzord/mcpexec/internal/synth"
	"github.com/flemzord/mcpexec/internal/tool"
	"github.com/flemzord/mcpexec/pkg/app"
)

// errExecutionFailed makes the process exit non-zero after the result was
// printed.
var errExecutionFailed = errors.New("execution failed")

func runCmd() *cobra.Command {
	var (
		dialect string
		opts    engine.Request
		asJSON  bool
		yes     bool
	)
	cmd := &cobra.Command{
		Use:   "run <intent>...",
		Short: "Execute one intent and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dialect != "" {
				d, err := synth.ParseDialect(dialect)
				if err != nil {
					return err
				}
				opts.Dialect = d
			}
			opts.Intent = strings.Join(args, " ")

			approver := promptApprover(cmd.InOrStdin(), cmd.ErrOrStderr())
			if yes {
				approver = tool.ApprovalFunc(func(context.Context, tool.ApprovalRequest) (tool.ApprovalResponse, error) {
					return tool.ApprovalResponse{Approved: true, Reason: "approved with --yes"}, nil
				})
			}
			a, err := buildApp(cmd, app.Options{Approver: approver})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			stop := a.Cleanups.Notify(cmd.Context(), nil)
			defer stop()

			res := a.Engine.Execute(cmd.Context(), opts)
			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, res); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, res.Summary)
			}
			if !res.Success {
				return fmt.Errorf("%w: %s", errExecutionFailed, res.ExecutionID)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&dialect, "dialect", "", "Program dialect: typed-script or scripted-python")
	f.DurationVar(&opts.Limits.Wall, "timeout", 0, "Wall-clock limit for the sandboxed run")
	f.Int64Var(&opts.Limits.MemoryBytes, "memory", 0, "Memory limit in bytes")
	f.BoolVar(&opts.NoCache, "no-cache", false, "Skip the result cache")
	f.BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	f.BoolVarP(&yes, "yes", "y", false, "Approve artifacts that need approval without asking")
	return cmd
}
