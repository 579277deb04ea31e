package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// SandboxBackend selects the interpreter runtime.
type SandboxBackend string

const (
	// SandboxEmbedded extracts a bundled CPython and installs packages into the session.
	SandboxEmbedded SandboxBackend = "embedded"
	// SandboxHost uses a python interpreter already on PATH.
	SandboxHost SandboxBackend = "host"
)

// SandboxConfig configures the sandboxed interpreter and its fixed file names.
type SandboxConfig struct {
	Backend      SandboxBackend `yaml:"backend"`
	Name         string         `yaml:"name"`          // embedded distribution name (extraction dir)
	PythonBinary string         `yaml:"python_binary"` // host backend only
	Packages     []string       `yaml:"packages"`      // installed once per session

	// Fixed names inside the session workspace
	InputName   string `yaml:"input_name"`
	OutputName  string `yaml:"output_name"`
	ScratchName string `yaml:"scratch_name"`
	ScriptName  string `yaml:"script_name"`

	// ForbiddenImport is a module the generated script must not import.
	ForbiddenImport string `yaml:"forbidden_import"`

	ExecTimeout    string `yaml:"exec_timeout"`
	InstallTimeout string `yaml:"install_timeout"`
	MaxOutputBytes int64  `yaml:"max_output_bytes"`

	// WorkDir is the parent of the per-session workspace ("" = os.TempDir()).
	WorkDir string `yaml:"work_dir"`
}

// GetExecTimeout returns the per-script timeout as a duration.
func (s SandboxConfig) GetExecTimeout() time.Duration {
	d, err := time.ParseDuration(s.ExecTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetInstallTimeout returns the package installation timeout as a duration.
func (s SandboxConfig) GetInstallTimeout() time.Duration {
	d, err := time.ParseDuration(s.InstallTimeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

func (s SandboxConfig) validate() error {
	switch s.Backend {
	case SandboxEmbedded, SandboxHost:
	default:
		return fmt.Errorf("invalid sandbox backend: %s (valid: [embedded host])", s.Backend)
	}
	for field, name := range map[string]string{
		"input_name":   s.InputName,
		"output_name":  s.OutputName,
		"scratch_name": s.ScratchName,
		"script_name":  s.ScriptName,
	} {
		if name == "" || !filepath.IsLocal(name) || filepath.Base(name) != name {
			return fmt.Errorf("sandbox.%s must be a plain file name, got %q", field, name)
		}
	}
	if s.InputName == s.OutputName {
		return fmt.Errorf("sandbox.input_name and sandbox.output_name must differ")
	}
	return nil
}
