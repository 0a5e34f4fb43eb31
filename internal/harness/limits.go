package harness

import (
	"strconv"
)

// Profile selects how much of the interpreter's standard library an
// artifact may reach.
type Profile string

// Interpreter profiles.
const (
	// ProfileFull exposes the interpreter's whole standard library.
	ProfileFull Profile = "full"
	// ProfileRestricted drops process, network and low-level packages and
	// tightens file limits.
	ProfileRestricted Profile = "restricted"
)

// Restricted-profile file limits.
const (
	RestrictedOpenFiles = 64
	RestrictedFileSize  = 1 << 20
)

// Limits are applied by the child to itself before running the artifact.
// Zero fields leave the inherited limit untouched.
type Limits struct {
	MemoryBytes int64
	CPUSeconds  int64
	OpenFiles   int64
	FileSize    int64
}

// ForProfile returns l with the extra limits p implies.
func (l Limits) ForProfile(p Profile) Limits {
	if p == ProfileRestricted {
		if l.OpenFiles == 0 {
			l.OpenFiles = RestrictedOpenFiles
		}
		if l.FileSize == 0 {
			l.FileSize = RestrictedFileSize
		}
	}
	return l
}

// Invocation describes one harness run. Args renders it as the flag list
// Main parses, so host and child share one definition.
type Invocation struct {
	Dialect string
	Profile Profile
	Limits  Limits
	Python  string
	File    string
}

// Args returns the command-line arguments for inv.
func (inv Invocation) Args() []string {
	args := []string{
		"--dialect", inv.Dialect,
		"--profile", string(inv.Profile),
	}
	add := func(name string, v int64) {
		if v > 0 {
			args = append(args, name, strconv.FormatInt(v, 10))
		}
	}
	add("--memory-bytes", inv.Limits.MemoryBytes)
	add("--cpu-seconds", inv.Limits.CPUSeconds)
	add("--open-files", inv.Limits.OpenFiles)
	add("--file-size", inv.Limits.FileSize)
	if inv.Python != "" {
		args = append(args, "--python", inv.Python)
	}
	return append(args, inv.File)
}
