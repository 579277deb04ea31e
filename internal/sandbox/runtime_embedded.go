package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kluctl/go-embed-python/python"

	"sheetwright/internal/config"
	"sheetwright/internal/logging"
)

// packagesMarker records which packages a site directory holds.
const packagesMarker = ".sheetwright-packages"

// EmbeddedRuntime runs scripts with a bundled Python distribution.
type EmbeddedRuntime struct {
	ws *Workspace
	py *python.EmbeddedPython
}

// NewEmbeddedRuntime extracts the interpreter and installs cfg.Packages
// into a per-user cache directory, skipping the install when the cache
// already holds the same package set.
func NewEmbeddedRuntime(ctx context.Context, cfg config.SandboxConfig) (*EmbeddedRuntime, error) {
	timer := logging.StartTimer(logging.CategorySandbox, "embedded runtime boot")
	defer timer.Stop()

	py, err := python.NewEmbeddedPython(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("extract embedded python: %w", err)
	}
	ws, err := NewWorkspace(cfg.WorkDir, cfg.Name)
	if err != nil {
		py.Cleanup()
		return nil, err
	}
	rt := &EmbeddedRuntime{ws: ws, py: py}

	if len(cfg.Packages) > 0 {
		site, err := sitePackagesDir(cfg.Name)
		if err != nil {
			rt.Close()
			return nil, err
		}
		if err := rt.install(ctx, site, cfg.Packages, cfg.GetInstallTimeout()); err != nil {
			rt.Close()
			return nil, err
		}
		py.AddPythonPath(site)
	}

	logging.Sandbox("embedded runtime ready (workspace %s)", ws.Dir())
	return rt, nil
}

func sitePackagesDir(name string) (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	dir := filepath.Join(base, name, "site-packages")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create package cache: %w", err)
	}
	return dir, nil
}

func packageSet(pkgs []string) string {
	sorted := slices.Clone(pkgs)
	slices.Sort(sorted)
	return strings.Join(sorted, "\n")
}

func (r *EmbeddedRuntime) install(ctx context.Context, site string, pkgs []string, timeout time.Duration) error {
	marker := filepath.Join(site, packagesMarker)
	want := packageSet(pkgs)
	if have, err := os.ReadFile(marker); err == nil && string(have) == want {
		logging.SandboxDebug("packages already installed in %s", site)
		return nil
	}

	logging.Sandbox("installing %s into %s", strings.Join(pkgs, ", "), site)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{
		"-m", "pip", "install",
		"--disable-pip-version-check", "--no-input", "--quiet", "--upgrade",
		"--target", site,
	}, pkgs...)
	cmd, err := r.command(ctx, args...)
	if err != nil {
		return err
	}
	cmd.Dir = site
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("package install timed out after %s", timeout)
		}
		return fmt.Errorf("package install failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return os.WriteFile(marker, []byte(want), 0o644)
}

func (r *EmbeddedRuntime) Workspace() *Workspace { return r.ws }

// Command rebuilds the interpreter command under ctx, keeping the PYTHON*
// variables go-embed-python sets up.
func (r *EmbeddedRuntime) Command(ctx context.Context, args ...string) (*exec.Cmd, error) {
	cmd, err := r.command(ctx, args...)
	if err != nil {
		return nil, err
	}
	cmd.Dir = r.ws.Dir()
	return cmd, nil
}

func (r *EmbeddedRuntime) command(ctx context.Context, args ...string) (*exec.Cmd, error) {
	base, err := r.py.PythonCmd(args...)
	if err != nil {
		return nil, fmt.Errorf("prepare embedded python: %w", err)
	}
	var pythonVars []string
	for _, kv := range base.Env {
		if strings.HasPrefix(kv, "PYTHON") {
			pythonVars = append(pythonVars, kv)
		}
	}
	cmd := exec.CommandContext(ctx, base.Path, base.Args[1:]...)
	cmd.Env = scriptEnvironment(pythonVars...)
	return cmd, nil
}

func (r *EmbeddedRuntime) Close() error {
	err := r.ws.Close()
	r.py.Cleanup()
	return err
}
