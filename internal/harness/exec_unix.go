//go:build unix

package harness

import (
	"fmt"
	"io"
	"os"
	"syscall"
)

// execPython replaces the harness image with the Python interpreter so the
// limits already applied carry over and no extra process is left behind.
func execPython(python string, argv []string, _ io.Reader, _, _ io.Writer) int {
	if err := syscall.Exec(python, argv, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "harness: exec %s: %v\n", python, err)
	}
	return exitSetup
}
