package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/mcpexec/internal/audit"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the persisted audit trail",
	}
	cmd.AddCommand(auditTailCmd())
	return cmd
}

func auditTailCmd() *cobra.Command {
	var (
		filter audit.Filter
		kind   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the newest audit events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			filter.Kind = audit.Kind(kind)

			var events []audit.Event
			switch {
			case cfg.Audit.SQLite != "":
				store, err := audit.OpenStore(cmd.Context(), cfg.Audit.SQLite)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				if events, err = store.Query(cmd.Context(), filter); err != nil {
					return err
				}
			case cfg.Audit.JSONL != "":
				if events, err = readJSONL(cfg.Audit.JSONL, filter); err != nil {
					return err
				}
			default:
				return errors.New("no persistent audit sink configured (set audit.sqlite or audit.jsonl)")
			}

			out := cmd.OutOrStdout()
			for _, e := range events {
				if asJSON {
					if err := writeJSON(out, e); err != nil {
						return err
					}
					continue
				}
				printEvent(out, e)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&kind, "kind", "", "Only events of this kind (execution, security, anomaly, ...)")
	f.StringVar(&filter.ExecutionID, "execution", "", "Only events of this execution")
	f.Uint64Var(&filter.AfterSequence, "after", 0, "Only events after this sequence number")
	f.IntVarP(&filter.Limit, "limit", "n", 20, "Maximum number of events")
	f.BoolVar(&asJSON, "json", false, "Print one JSON object per event")
	return cmd
}

func readJSONL(path string, f audit.Filter) ([]audit.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	all, err := audit.ReadJSONL(file)
	if err != nil {
		return nil, err
	}
	var out []audit.Event
	for _, e := range all {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

func printEvent(w io.Writer, e audit.Event) {
	var b strings.Builder
	fmt.Fprintf(&b, "%6d  %s  %-9s %-8s", e.Sequence, e.Timestamp.Local().Format(time.DateTime), e.Kind, e.Severity)
	if e.ExecutionID != "" {
		fmt.Fprintf(&b, "  %s", e.ExecutionID)
	}
	for _, k := range slices.Sorted(maps.Keys(e.Payload)) {
		fmt.Fprintf(&b, "  %s=%v", k, e.Payload[k])
	}
	fmt.Fprintln(w, b.String())
}
