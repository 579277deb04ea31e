package sandbox

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"sheetwright/internal/config"
	"sheetwright/internal/logging"
)

// shellRuntime runs "scripts" with sh so executor behaviour can be tested
// without a Python installation.
type shellRuntime struct {
	ws *Workspace
}

func (r *shellRuntime) Workspace() *Workspace { return r.ws }
func (r *shellRuntime) Command(ctx context.Context, args ...string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, "sh", args...)
	cmd.Dir = r.ws.Dir()
	return cmd, nil
}
func (r *shellRuntime) Close() error { return r.ws.Close() }

type staticSource struct {
	rt  Runtime
	err error
}

func (s staticSource) Runtime(context.Context) (Runtime, error) { return s.rt, s.err }

func testSandboxConfig(t *testing.T) config.SandboxConfig {
	cfg := config.DefaultConfig().Sandbox
	cfg.WorkDir = t.TempDir()
	return cfg
}

func newShellExecutor(t *testing.T, mutate func(*config.SandboxConfig)) (*Executor, *Workspace) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-backed executor tests need sh")
	}
	cfg := testSandboxConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}
	ws, err := NewWorkspace(cfg.WorkDir, "exec")
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return NewExecutor(staticSource{rt: &shellRuntime{ws: ws}}, cfg), ws
}

type logSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *logSink) add(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func TestExecutor_ReturnsOutputAndStreamsLogs(t *testing.T) {
	e, _ := newShellExecutor(t, nil)
	sink := &logSink{}

	script := "echo 'Reading input.xlsx'\necho 'Doubling column C'\ncp input.xlsx output.xlsx\n"
	out, err := e.Execute(context.Background(), script, []byte("xlsx-bytes"), sink.add)

	require.NoError(t, err)
	assert.Equal(t, "xlsx-bytes", string(out))
	assert.Equal(t, []string{"Reading input.xlsx", "Doubling column C"}, sink.lines)
}

func TestExecutor_NoOutputIsDistinctFromRaised(t *testing.T) {
	e, ws := newShellExecutor(t, nil)
	// a stale artifact from an earlier run must not count as output
	require.NoError(t, ws.WriteFile("output.xlsx", []byte("stale")))

	_, err := e.Execute(context.Background(), "echo 'all done'\n", []byte("in"), nil)
	var noOut *ExecutionError
	require.ErrorAs(t, err, &noOut)
	assert.Equal(t, KindNoOutput, noOut.Kind)
	assert.Equal(t, "script finished without errors but did not create output.xlsx", noOut.Error())

	raising := "echo 'Traceback (most recent call last):' >&2\necho \"KeyError: 'C'\" >&2\nexit 1\n"
	_, err = e.Execute(context.Background(), raising, []byte("in"), nil)
	var raised *ExecutionError
	require.ErrorAs(t, err, &raised)
	assert.Equal(t, KindScriptRaised, raised.Kind)
	assert.Equal(t, "script raised an error: KeyError: 'C'", raised.Error())
	assert.Contains(t, raised.Stderr, "Traceback")

	assert.NotEqual(t, noOut.Kind, raised.Kind)
}

func TestExecutor_TruncationReportsDiscardedBytes(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logging.SetLogger(zap.New(core), config.LoggingConfig{})
	t.Cleanup(func() { logging.SetLogger(zap.NewNop(), config.LoggingConfig{}) })

	e, _ := newShellExecutor(t, func(c *config.SandboxConfig) { c.MaxOutputBytes = 10 })
	script := "printf '0123456789abcdef\\n'\nprintf 'ERR-0123456789' >&2\ncp input.xlsx output.xlsx\n"
	_, err := e.Execute(context.Background(), script, []byte("in"), nil)
	require.NoError(t, err)

	warnings := logs.FilterMessageSnippet("truncated").All()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "(7 stdout and 4 stderr bytes discarded)")
}

func TestExecutor_Timeout(t *testing.T) {
	e, _ := newShellExecutor(t, func(c *config.SandboxConfig) { c.ExecTimeout = "200ms" })

	_, err := e.Execute(context.Background(), "exec sleep 5\n", nil, nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, KindTimeout, execErr.Kind)
}

func TestExecutor_RuntimeUnavailable(t *testing.T) {
	e := NewExecutor(staticSource{err: errors.New("embedded python missing")}, testSandboxConfig(t))

	_, err := e.Execute(context.Background(), "print(1)", nil, nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, KindRuntime, execErr.Kind)
	assert.ErrorContains(t, err, "embedded python missing")
}

func TestLastErrorLine(t *testing.T) {
	stderr := "Traceback (most recent call last):\n  File \"script.py\", line 3, in <module>\nValueError: bad value\n\n"
	assert.Equal(t, "ValueError: bad value", LastErrorLine(stderr))
	assert.Equal(t, "", LastErrorLine("  \n"))
}
