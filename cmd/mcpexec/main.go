// Package main is the entry point for the mcpexec CLI.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/mcpexec/internal/config"
	"github.com/flemzord/mcpexec/internal/invoke"
	"github.com/flemzord/mcpexec/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mcpexec",
		Short:         "Turn natural-language intents into sandboxed tool programs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("log-level", "", "Override the configured log level")
	root.AddCommand(
		versionCmd(),
		runCmd(),
		serveCmd(),
		mcpCmd(),
		toolsCmd(),
		auditCmd(),
		serviceCmd(),
		harnessCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcpexec %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// loadConfig reads the --config and --log-level flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, _, err := app.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, nil
}

// buildApp loads the configuration and wires the stack. Logs go to
// stderr so stdout stays clean for results and MCP framing.
func buildApp(cmd *cobra.Command, opts app.Options) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	invoke.ClientVersion = version
	opts.Version = version
	if opts.LogOutput == nil {
		opts.LogOutput = cmd.ErrOrStderr()
	}
	return app.Build(cmd.Context(), cfg, opts)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway and maintenance jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return a.Serve(cmd.Context(), app.ServeOptions{HTTP: true})
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve execute_intent and search_tools over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return a.Serve(cmd.Context(), app.ServeOptions{
				MCPIn:  cmd.InOrStdin(),
				MCPOut: cmd.OutOrStdout(),
			})
		},
	}
}
