//go:build linux || darwin

package harness

import (
	"fmt"
	"syscall"
)

// applyRlimits lowers the soft and hard limits of the current process.
// Address-space limits are only set when the next image is a fresh
// interpreter; the Go runtime's own reservations exceed small AS limits.
func applyRlimits(l Limits, addressSpace bool) error {
	set := func(name string, resource int, v int64) error {
		if v <= 0 {
			return nil
		}
		lim := &syscall.Rlimit{Cur: uint64(v), Max: uint64(v)}
		if err := syscall.Setrlimit(resource, lim); err != nil {
			return fmt.Errorf("setrlimit %s: %w", name, err)
		}
		return nil
	}
	if err := set("cpu", syscall.RLIMIT_CPU, l.CPUSeconds); err != nil {
		return err
	}
	if err := set("nofile", syscall.RLIMIT_NOFILE, l.OpenFiles); err != nil {
		return err
	}
	if err := set("fsize", syscall.RLIMIT_FSIZE, l.FileSize); err != nil {
		return err
	}
	if addressSpace {
		if err := set("as", syscall.RLIMIT_AS, l.MemoryBytes); err != nil {
			return err
		}
	}
	return nil
}
