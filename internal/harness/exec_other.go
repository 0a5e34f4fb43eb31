//go:build !unix

package harness

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
)

func execPython(python string, argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := exec.Command(python, argv[1:]...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(stderr, "harness: run %s: %v\n", python, err)
		return exitSetup
	}
	return 0
}
