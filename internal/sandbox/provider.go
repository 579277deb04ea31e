package sandbox

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"sheetwright/internal/config"
	"sheetwright/internal/logging"
)

// BootFunc starts a Runtime.
type BootFunc func(ctx context.Context) (Runtime, error)

// Provider boots a Runtime on first use and hands the same instance to
// every later caller. Concurrent first callers share one boot; a failed
// boot is not remembered, so the next call tries again.
type Provider struct {
	boot  BootFunc
	group singleflight.Group

	mu     sync.Mutex
	rt     Runtime
	closed bool
}

// NewProvider creates a provider around boot.
func NewProvider(boot BootFunc) *Provider {
	return &Provider{boot: boot}
}

// BootFromConfig selects the backend named by cfg.Backend.
func BootFromConfig(cfg config.SandboxConfig) BootFunc {
	return func(ctx context.Context) (Runtime, error) {
		switch cfg.Backend {
		case config.SandboxHost:
			return NewHostRuntime(cfg)
		case config.SandboxEmbedded, "":
			return NewEmbeddedRuntime(ctx, cfg)
		}
		return nil, fmt.Errorf("unknown sandbox backend %q", cfg.Backend)
	}
}

// Runtime returns the session runtime, booting it if needed. ctx bounds
// only this caller's wait; the shared boot keeps running for the others.
func (p *Provider) Runtime(ctx context.Context) (Runtime, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if p.rt != nil {
		rt := p.rt
		p.mu.Unlock()
		return rt, nil
	}
	p.mu.Unlock()

	ch := p.group.DoChan("boot", func() (interface{}, error) {
		return p.doBoot(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Runtime), nil
	}
}

func (p *Provider) doBoot(ctx context.Context) (Runtime, error) {
	p.mu.Lock()
	if p.rt != nil {
		rt := p.rt
		p.mu.Unlock()
		return rt, nil
	}
	p.mu.Unlock()

	logging.Sandbox("booting runtime")
	rt, err := p.boot(ctx)
	if err != nil {
		logging.SandboxError("runtime boot failed: %v", err)
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		if cerr := rt.Close(); cerr != nil {
			logging.SandboxWarn("closing runtime booted after shutdown: %v", cerr)
		}
		return nil, ErrClosed
	}
	p.rt = rt
	return rt, nil
}

// Booted reports whether a runtime is ready.
func (p *Provider) Booted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rt != nil
}

// Close shuts down the runtime, if any. Later calls to Runtime fail.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.rt == nil {
		return nil
	}
	err := p.rt.Close()
	p.rt = nil
	return err
}
