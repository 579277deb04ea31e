package sandbox

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"sheetwright/internal/config"
	"sheetwright/internal/logging"
)

type stubRuntime struct {
	ws       *Workspace
	closed   atomic.Int32
	closeErr error
}

func (r *stubRuntime) Workspace() *Workspace { return r.ws }
func (r *stubRuntime) Command(context.Context, ...string) (*exec.Cmd, error) {
	return nil, errors.New("stub runtime cannot run commands")
}
func (r *stubRuntime) Close() error {
	r.closed.Add(1)
	return r.closeErr
}

func TestProvider_BootsOnceForConcurrentCallers(t *testing.T) {
	release := make(chan struct{})
	var boots atomic.Int32
	rt := &stubRuntime{}
	p := NewProvider(func(context.Context) (Runtime, error) {
		boots.Add(1)
		<-release
		return rt, nil
	})

	var wg sync.WaitGroup
	results := make([]Runtime, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := p.Runtime(context.Background())
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), boots.Load())
	for _, got := range results {
		assert.Same(t, rt, got)
	}
	assert.True(t, p.Booted())

	again, err := p.Runtime(context.Background())
	require.NoError(t, err)
	assert.Same(t, rt, again)
	assert.Equal(t, int32(1), boots.Load())
}

func TestProvider_FailedBootIsRetried(t *testing.T) {
	var boots atomic.Int32
	rt := &stubRuntime{}
	p := NewProvider(func(context.Context) (Runtime, error) {
		if boots.Add(1) == 1 {
			return nil, errors.New("pip install failed")
		}
		return rt, nil
	})

	_, err := p.Runtime(context.Background())
	assert.EqualError(t, err, "pip install failed")
	assert.False(t, p.Booted())

	got, err := p.Runtime(context.Background())
	require.NoError(t, err)
	assert.Same(t, rt, got)
	assert.Equal(t, int32(2), boots.Load())
}

func TestProvider_CallerCancelDoesNotAbortBoot(t *testing.T) {
	release := make(chan struct{})
	rt := &stubRuntime{}
	p := NewProvider(func(ctx context.Context) (Runtime, error) {
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return rt, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Runtime(ctx)
		done <- err
	}()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	got, err := p.Runtime(context.Background())
	require.NoError(t, err)
	assert.Same(t, rt, got)
}

func TestProvider_Close(t *testing.T) {
	rt := &stubRuntime{}
	p := NewProvider(func(context.Context) (Runtime, error) { return rt, nil })

	_, err := p.Runtime(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, int32(1), rt.closed.Load())

	_, err = p.Runtime(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestProvider_BootFinishingAfterCloseReleasesRuntime(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logging.SetLogger(zap.New(core), config.LoggingConfig{})
	t.Cleanup(func() { logging.SetLogger(zap.NewNop(), config.LoggingConfig{}) })

	started := make(chan struct{})
	release := make(chan struct{})
	rt := &stubRuntime{closeErr: errors.New("interpreter still busy")}
	p := NewProvider(func(context.Context) (Runtime, error) {
		close(started)
		<-release
		return rt, nil
	})

	errc := make(chan error, 1)
	go func() {
		_, err := p.Runtime(context.Background())
		errc <- err
	}()
	<-started
	require.NoError(t, p.Close())
	close(release)

	assert.ErrorIs(t, <-errc, ErrClosed)
	assert.Equal(t, int32(1), rt.closed.Load())
	assert.False(t, p.Booted())

	warnings := logs.FilterMessageSnippet("interpreter still busy").All()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "closing runtime booted after shutdown")
}

func TestBootFromConfig_UnknownBackend(t *testing.T) {
	cfg := testSandboxConfig(t)
	cfg.Backend = "wasm"
	_, err := BootFromConfig(cfg)(context.Background())
	assert.ErrorContains(t, err, "unknown sandbox backend")
}
