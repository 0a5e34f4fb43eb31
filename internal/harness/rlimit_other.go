//go:build !(linux || darwin)

package harness

// applyRlimits is a no-op where setrlimit is unavailable; the host's wall
// clock and the container tier still bound the run.
func applyRlimits(Limits, bool) error {
	return nil
}
