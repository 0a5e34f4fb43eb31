package sandbox

import (
	"context"
	"os/exec"
	"path"
	"strconv"
	"time"

	"github.com/flemzord/mcpexec/internal/harness"
	"github.com/flemzord/mcpexec/internal/synth"
	"github.com/flemzord/mcpexec/internal/workspace"
)

// ContainerConfig configures the container tier.
type ContainerConfig struct {
	// Runtime is the container CLI. Defaults to "docker".
	Runtime string `yaml:"runtime"`
	// Images per dialect. The harness binary is mounted into the container,
	// so it must be statically linked for the typed-script image.
	TypedScriptImage string `yaml:"typed_script_image"`
	PythonImage      string `yaml:"python_image"`
	PidsLimit        int    `yaml:"pids_limit"`
	TmpfsMB          int    `yaml:"tmpfs_mb"`
}

func (c *ContainerConfig) defaults() {
	if c.Runtime == "" {
		c.Runtime = "docker"
	}
	if c.TypedScriptImage == "" {
		c.TypedScriptImage = "gcr.io/distroless/static-debian12:nonroot"
	}
	if c.PythonImage == "" {
		c.PythonImage = "python:3.12-alpine"
	}
	if c.PidsLimit <= 0 {
		c.PidsLimit = 256
	}
	if c.TmpfsMB <= 0 {
		c.TmpfsMB = 64
	}
}

const (
	containerWorkdir = "/workspace"
	containerHarness = "/opt/mcpexec/harness"
)

func containerName(wsID string) string {
	return "mcpexec-" + wsID
}

// containerArgs builds the runtime arguments. The container has a
// read-only root, no capabilities, an unprivileged user and, unless egress
// is allowed, no network. The workspace is mounted read-only.
func (e *Executor) containerArgs(name string, ws workspace.Workspace, limits Limits) []string {
	cc := e.cfg.Container
	network := "none"
	if limits.Network == NetworkEgress {
		network = "bridge"
	}
	image := cc.TypedScriptImage
	if ws.Dialect == synth.ScriptedPython {
		image = cc.PythonImage
	}

	args := []string{
		"run", "--rm", "-i",
		"--name", name,
		"--read-only",
		"--network=" + network,
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges:true",
		"--user", "65534:65534",
		"--pids-limit", strconv.Itoa(cc.PidsLimit),
		"--cpus", strconv.FormatFloat(limits.CPUShare, 'f', -1, 64),
		"--memory", strconv.FormatInt(limits.MemoryBytes, 10),
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=" + strconv.Itoa(cc.TmpfsMB) + "m",
		"-v", ws.Dir + ":" + containerWorkdir + ":ro",
		"-v", e.cfg.HarnessPath + ":" + containerHarness + ":ro",
		"-w", containerWorkdir,
	}
	for _, kv := range e.cfg.HarnessEnv {
		args = append(args, "-e", kv)
	}

	inv := e.invocation(ws, harness.ProfileRestricted, limits, path.Join(containerWorkdir, ws.Dialect.FileName()))
	// The runtime enforces memory; the child only needs the CPU limit.
	inv.Limits.MemoryBytes = 0
	args = append(args, "--entrypoint", containerHarness, image)
	args = append(args, e.cfg.HarnessArgs...)
	return append(args, inv.Args()...)
}

// removeContainer force-removes name. The container normally removes
// itself; this covers a client killed before it could.
func (e *Executor) removeContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	//nolint:gosec // name is derived from a workspace id.
	if out, err := exec.CommandContext(ctx, e.cfg.Container.Runtime, "rm", "-f", name).CombinedOutput(); err != nil {
		e.logger.Debug("container removal", "container", name, "error", err, "output", string(out))
	}
}
