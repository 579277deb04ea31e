package sandbox

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetwright/internal/config"
)

func TestHostRuntime_RunsPython(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not on PATH")
	}
	cfg := testSandboxConfig(t)
	cfg.Backend = config.SandboxHost

	p := NewProvider(BootFromConfig(cfg))
	defer p.Close()

	e := NewExecutor(p, cfg)
	var lines []string
	script := strings.Join([]string{
		"import os, shutil",
		"print('cwd has input:', os.path.exists('input.xlsx'))",
		"print('key visible:', 'GEMINI_API_KEY' in os.environ)",
		"shutil.copy('input.xlsx', 'output.xlsx')",
	}, "\n")

	t.Setenv("GEMINI_API_KEY", "secret")
	out, err := e.Execute(context.Background(), script, []byte("payload"), func(s string) { lines = append(lines, s) })
	require.NoError(t, err)
	assert.Equal(t, "payload", string(out))
	assert.Equal(t, []string{"cwd has input: True", "key visible: False"}, lines)
}

func TestHostRuntime_MissingInterpreter(t *testing.T) {
	cfg := testSandboxConfig(t)
	cfg.PythonBinary = "definitely-not-a-python-binary"
	_, err := NewHostRuntime(cfg)
	assert.ErrorContains(t, err, "not found")
}
