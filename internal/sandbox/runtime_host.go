package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"sheetwright/internal/config"
	"sheetwright/internal/logging"
)

// allowedEnvironment is copied from the parent process into scripts.
// Credentials such as GEMINI_API_KEY are never passed through.
var allowedEnvironment = []string{
	"PATH", "HOME", "USER", "LANG", "LC_ALL", "LC_CTYPE", "TMPDIR", "TZ",
	"SYSTEMROOT", "TEMP", "TMP", // Windows
}

// scriptEnvironment builds the interpreter environment. extra entries
// (KEY=VALUE) are appended last and win.
func scriptEnvironment(extra ...string) []string {
	env := make([]string, 0, len(allowedEnvironment)+len(extra)+4)
	for _, key := range allowedEnvironment {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}
	env = append(env,
		"PYTHONUNBUFFERED=1",
		"PYTHONIOENCODING=utf-8",
		"PYTHONDONTWRITEBYTECODE=1",
		"MPLBACKEND=Agg",
	)
	return append(env, extra...)
}

// HostRuntime runs scripts with an interpreter from PATH.
type HostRuntime struct {
	ws     *Workspace
	binary string
}

// NewHostRuntime resolves cfg.PythonBinary and creates a workspace.
func NewHostRuntime(cfg config.SandboxConfig) (*HostRuntime, error) {
	binary, err := exec.LookPath(cfg.PythonBinary)
	if err != nil {
		return nil, fmt.Errorf("python interpreter %q not found: %w", cfg.PythonBinary, err)
	}
	ws, err := NewWorkspace(cfg.WorkDir, cfg.Name)
	if err != nil {
		return nil, err
	}
	logging.Sandbox("host runtime ready: %s (workspace %s)", binary, ws.Dir())
	return &HostRuntime{ws: ws, binary: binary}, nil
}

func (r *HostRuntime) Workspace() *Workspace { return r.ws }

func (r *HostRuntime) Command(ctx context.Context, args ...string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = r.ws.Dir()
	cmd.Env = scriptEnvironment()
	logging.SandboxDebug("command: %s %s", r.binary, strings.Join(args, " "))
	return cmd, nil
}

func (r *HostRuntime) Close() error {
	return r.ws.Close()
}
