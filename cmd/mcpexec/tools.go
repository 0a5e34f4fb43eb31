package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flemzord/mcpexec/internal/tool"
	"github.com/flemzord/mcpexec/pkg/app"
)

func toolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tool registry",
	}
	cmd.AddCommand(toolsListCmd(), toolsSearchCmd(), toolsValidateCmd())
	return cmd
}

func toolsListCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd, app.Options{SkipTracing: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			descs := a.Registry.All()
			if category != "" {
				descs = a.Registry.ByCategory(category)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCATEGORY\tSERVER\tDESCRIPTION")
			for _, d := range descs {
				server := d.Server
				if server == "" {
					server = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Category, server, d.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only list tools in this category")
	return cmd
}

func toolsSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <intent>",
		Short: "Rank tools against an intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd, app.Options{SkipTracing: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			results := a.Engine.Search(cmd.Context(), args[0], limit)
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No relevant tools found.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tNAME\tRELEVANCE\tLEXICAL\tSEMANTIC")
			for i, r := range results {
				fmt.Fprintf(tw, "%d\t%s\t%.3f\t%.3f\t%.3f\n", i+1, r.Descriptor.Name, r.Relevance, r.Lexical, r.Semantic)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of tools")
	return cmd
}

func toolsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Check descriptor files under a directory, or a single file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := tool.NewRegistry(slog.New(slog.DiscardHandler))
			report, err := reg.IndexFrom(cmd.Context(), args[0])
			printReport(cmd.OutOrStdout(), report, reg.Names())
			if err != nil {
				return err
			}
			if len(report.Errors) > 0 {
				return fmt.Errorf("%d problem(s) found", len(report.Errors))
			}
			return nil
		},
	}
}

func printReport(w io.Writer, report tool.IndexReport, names []string) {
	fmt.Fprintf(w, "%d file(s), %d tool(s) indexed, %d skipped\n", report.Files, report.Indexed, report.Skipped)
	for _, n := range names {
		fmt.Fprintf(w, "  ok     %s\n", n)
	}
	for _, d := range report.Duplicates {
		fmt.Fprintf(w, "  dup    %s (last definition wins)\n", d)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  error  %v\n", e)
	}
}
