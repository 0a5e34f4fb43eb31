package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/flemzord/mcpexec/internal/tool"
)

// promptApprover asks on the terminal before a risky artifact runs. Input
// that is not a terminal gets huh's line-based accessible prompt.
func promptApprover(in io.Reader, out io.Writer) tool.ApprovalRequester {
	return tool.ApprovalFunc(func(ctx context.Context, req tool.ApprovalRequest) (tool.ApprovalResponse, error) {
		var approved bool
		form := huh.NewForm(huh.NewGroup(
			huh.NewNote().
				Title(fmt.Sprintf("Program for %q needs approval (risk score %d)", req.Intent, req.RiskScore)).
				Description(approvalDetails(req)),
			huh.NewConfirm().
				Title("Run it?").
				Affirmative("Run").
				Negative("Refuse").
				Value(&approved),
		)).
			WithInput(in).
			WithOutput(out).
			WithAccessible(!isTerminal(in))

		err := form.RunWithContext(ctx)
		switch {
		case errors.Is(err, huh.ErrUserAborted):
			return tool.ApprovalResponse{Reason: "aborted at the terminal"}, nil
		case ctx.Err() != nil:
			return tool.ApprovalResponse{}, ctx.Err()
		case err != nil:
			return tool.ApprovalResponse{}, fmt.Errorf("approval prompt: %w", err)
		case approved:
			return tool.ApprovalResponse{Approved: true, Reason: "approved at the terminal"}, nil
		default:
			return tool.ApprovalResponse{Reason: "declined at the terminal"}, nil
		}
	})
}

func approvalDetails(req tool.ApprovalRequest) string {
	var b strings.Builder
	for _, r := range req.Reasons {
		b.WriteString("- " + r + "\n")
	}
	if len(req.Tools) > 0 {
		b.WriteString("Tools: " + strings.Join(req.Tools, ", ") + "\n")
	}
	b.WriteString("\n" + req.Source)
	return b.String()
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
