// Package harness is the child side of a sandboxed execution. The host
// re-executes its own binary in harness mode; the harness lowers its own
// resource limits and then either interprets a typed-script artifact with
// yaegi or replaces itself with the Python interpreter.
//
// Tool calls leave the child through the bridge line protocol on stdout and
// are answered on stdin. The artifact's result is written as the last
// stdout line, encoded as JSON.
package harness

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime/debug"
	"strings"

	"github.com/spf13/pflag"
	"github.com/traefik/yaegi/interp"

	"github.com/flemzord/mcpexec/internal/bridge"
)

// EnvSelf marks a re-executed binary as a harness child. Binaries that
// cannot route to the harness subcommand (test binaries) check it at start.
const EnvSelf = "MCPEXEC_HARNESS"

// Dialect names accepted by --dialect.
const (
	DialectTypedScript    = "typed-script"
	DialectScriptedPython = "scripted-python"
)

// Exit codes.
const (
	exitOK       = 0
	exitArtifact = 1
	exitSetup    = 2
)

// RunIfChild runs Main and exits when EnvSelf is set. It returns otherwise.
func RunIfChild() {
	if os.Getenv(EnvSelf) != "1" {
		return
	}
	os.Exit(Main(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// setLimits is swapped out by in-process tests.
var setLimits = applyRlimits

type options struct {
	dialect string
	profile string
	limits  Limits
	python  string
	file    string
}

func parse(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := pflag.NewFlagSet("harness", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.dialect, "dialect", DialectTypedScript, "artifact dialect")
	fs.StringVar(&o.profile, "profile", string(ProfileFull), "interpreter profile (full, restricted)")
	fs.Int64Var(&o.limits.MemoryBytes, "memory-bytes", 0, "memory limit in bytes")
	fs.Int64Var(&o.limits.CPUSeconds, "cpu-seconds", 0, "CPU time limit in seconds")
	fs.Int64Var(&o.limits.OpenFiles, "open-files", 0, "open file descriptor limit")
	fs.Int64Var(&o.limits.FileSize, "file-size", 0, "largest file the artifact may write, in bytes")
	fs.StringVar(&o.python, "python", "python3", "Python interpreter")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() != 1 {
		return o, fmt.Errorf("expected exactly one artifact file, got %d", fs.NArg())
	}
	o.file = fs.Arg(0)
	switch Profile(o.profile) {
	case ProfileFull, ProfileRestricted:
	default:
		return o, fmt.Errorf("unknown profile %q", o.profile)
	}
	o.limits = o.limits.ForProfile(Profile(o.profile))
	return o, nil
}

// Main runs the harness with args (without the program name) and returns
// the process exit code.
func Main(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parse(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "harness: %v\n", err)
		return exitSetup
	}

	switch o.dialect {
	case DialectTypedScript:
		return runTyped(o, stdin, stdout, stderr)
	case DialectScriptedPython:
		return runPython(o, stdin, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "harness: unknown dialect %q\n", o.dialect)
		return exitSetup
	}
}

func runTyped(o options, stdin io.Reader, stdout, stderr io.Writer) int {
	src, err := os.ReadFile(o.file)
	if err != nil {
		fmt.Fprintf(stderr, "harness: %v\n", err)
		return exitSetup
	}
	if err := setLimits(o.limits, false); err != nil {
		fmt.Fprintf(stderr, "harness: %v\n", err)
		return exitSetup
	}
	if o.limits.MemoryBytes > 0 {
		debug.SetMemoryLimit(o.limits.MemoryBytes)
	}

	client := bridge.NewClient(stdout, stdin)
	result, err := Interpret(string(src), Profile(o.profile), client, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitArtifact
	}
	raw, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintf(stderr, "harness: encoding result: %v\n", err)
		return exitArtifact
	}
	if _, err := fmt.Fprintf(stdout, "%s\n", raw); err != nil {
		return exitSetup
	}
	return exitOK
}

// Interpret evaluates a typed-script artifact and calls its Run function.
// Tool calls go through client.
func Interpret(src string, profile Profile, client *bridge.Client, stdout, stderr io.Writer) (any, error) {
	i := interp.New(interp.Options{
		Stdin:  strings.NewReader(""),
		Stdout: stdout,
		Stderr: stderr,
	})
	if err := i.Use(Symbols(profile)); err != nil {
		return nil, fmt.Errorf("loading symbols: %w", err)
	}
	if err := i.Use(toolrtExports(client)); err != nil {
		return nil, fmt.Errorf("loading toolrt: %w", err)
	}
	if _, err := i.Eval(src); err != nil {
		return nil, fmt.Errorf("evaluating artifact: %w", err)
	}
	v, err := i.Eval("main.Run")
	if err != nil {
		return nil, fmt.Errorf("artifact has no Run function: %w", err)
	}
	run, ok := v.Interface().(func() (any, error))
	if !ok {
		return nil, errors.New("artifact Run has the wrong signature, want func() (any, error)")
	}
	return run()
}

func runPython(o options, stdin io.Reader, stdout, stderr io.Writer) int {
	python, err := exec.LookPath(o.python)
	if err != nil {
		fmt.Fprintf(stderr, "harness: python interpreter: %v\n", err)
		return exitSetup
	}
	if err := setLimits(o.limits, true); err != nil {
		fmt.Fprintf(stderr, "harness: %v\n", err)
		return exitSetup
	}
	argv := []string{python, "-I"}
	if Profile(o.profile) == ProfileRestricted {
		argv = append(argv, "-S")
	}
	argv = append(argv, o.file)
	return execPython(python, argv, stdin, stdout, stderr)
}
