package sandbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/flemzord/mcpexec/internal/bridge"
)

type runOutput struct {
	output any
	memory int64
}

// run starts cmd, serves its tool calls and collects its output. The child
// runs in its own process group; cancelling ctx kills the group.
func (e *Executor) run(ctx context.Context, cmd *exec.Cmd, wsID string, handler ToolHandler) (runOutput, error) {
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = e.cfg.WaitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return runOutput{}, fmt.Errorf("sandbox: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return runOutput{}, fmt.Errorf("sandbox: stdout pipe: %w", err)
	}
	stderr := &cappedBuffer{limit: e.cfg.OutputLimit}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return runOutput{}, fmt.Errorf("sandbox: starting child: %w", err)
	}

	procID := "process/" + wsID
	e.cleanups.Register(procID, func() error { return killProcessGroup(cmd) })
	defer e.cleanups.Unregister(procID)

	// A process that left the group (setsid) can hold stdout open after
	// the group is killed; closing our end unblocks the reader.
	stopWatch := context.AfterFunc(ctx, func() { _ = stdout.Close() })
	out := &outputBuffer{limit: e.cfg.OutputLimit}
	streamErr := e.stream(ctx, stdout, stdin, handler, out)
	stopWatch()
	if streamErr != nil {
		_ = killProcessGroup(cmd)
		_ = stdout.Close()
	}
	_ = stdin.Close()
	waitErr := cmd.Wait()
	// Reap anything the artifact left behind in the group.
	_ = killProcessGroup(cmd)

	ro := runOutput{memory: maxRSS(cmd.ProcessState)}
	switch {
	case streamErr != nil:
		return ro, streamErr
	case waitErr != nil:
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		return ro, errors.New(msg)
	}
	ro.output = parseOutput(out)
	return ro, nil
}

// stream reads the child's stdout until EOF or until run closes it.
// Tool-call lines are answered on stdin in order; every other line is
// output.
func (e *Executor) stream(ctx context.Context, stdout io.Reader, stdin io.Writer, handler ToolHandler, out *outputBuffer) error {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64<<10), bridge.MaxLineBytes)
	for sc.Scan() {
		line := sc.Text()
		req, isCall, err := bridge.ParseRequest(line)
		if !isCall {
			out.add(line)
			continue
		}
		resp := e.answer(ctx, req, err, handler)
		if werr := bridge.WriteResponse(stdin, resp); werr != nil {
			// The child is gone; its exit status explains why.
			e.logger.Debug("tool response not delivered", "tool", req.Tool, "error", werr)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("sandbox: reading child output: %w", err)
	}
	return nil
}

func (e *Executor) answer(ctx context.Context, req bridge.Request, parseErr error, handler ToolHandler) bridge.Response {
	resp := bridge.Response{ID: req.ID}
	if parseErr != nil {
		resp.Error = parseErr.Error()
		return resp
	}
	if handler == nil {
		resp.Error = ErrNoToolBackend.Error()
		return resp
	}
	result, err := handler.CallTool(ctx, req.Tool, req.Args)
	if err != nil {
		e.logger.Debug("tool call failed", "tool", req.Tool, "error", err)
		resp.Error = err.Error()
		return resp
	}
	resp.OK = true
	resp.Result = result
	return resp
}
