package sandbox

import (
	"os"
	"syscall"
)

// maxRSS returns the peak resident set size of the finished child. Darwin
// reports ru_maxrss in bytes.
func maxRSS(ps *os.ProcessState) int64 {
	if ps == nil {
		return 0
	}
	if ru, ok := ps.SysUsage().(*syscall.Rusage); ok && ru != nil {
		return int64(ru.Maxrss)
	}
	return 0
}
