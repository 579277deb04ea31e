// Package session bundles everything one user session needs: storage,
// usage tracking, the sandbox runtime, the generator, the event bus and the
// pipeline that drives them. A Session is created at start-up and closed
// at shutdown; nothing here lives in package-level state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sheetwright/internal/config"
	"sheetwright/internal/events"
	"sheetwright/internal/generator"
	"sheetwright/internal/logging"
	"sheetwright/internal/pipeline"
	"sheetwright/internal/sandbox"
	"sheetwright/internal/store"
	"sheetwright/internal/usage"
	"sheetwright/internal/workbook"
)

// Session is the explicit context object for one client.
type Session struct {
	ID     string
	Config *config.Config

	Store     store.KV
	Usage     *usage.Tracker
	Runtimes  *sandbox.Provider
	Generator *generator.Generator
	Bus       *events.Bus
	Pipeline  *pipeline.Pipeline

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	completer generator.Completer
	kv        store.KV
	boot      sandbox.BootFunc
	now       func() time.Time
	genOpts   []generator.Option
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

// WithCompleter replaces the Gemini client.
func WithCompleter(c generator.Completer) Option {
	return func(o *options) { o.completer = c }
}

// WithStore replaces the sqlite store. The session closes it.
func WithStore(kv store.KV) Option {
	return func(o *options) { o.kv = kv }
}

// WithBoot replaces the configured sandbox backend.
func WithBoot(boot sandbox.BootFunc) Option {
	return func(o *options) { o.boot = boot }
}

// WithClock replaces time.Now for usage accounting and log timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithGeneratorOptions passes options through to the generator.
func WithGeneratorOptions(opts ...generator.Option) Option {
	return func(o *options) { o.genOpts = append(o.genOpts, opts...) }
}

// New wires a session from cfg. The sandbox runtime is not booted until
// the first run needs it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var storeErr error
	if o.kv == nil {
		local, err := store.NewLocalStore(cfg.Storage.DatabasePath)
		if err != nil {
			storeErr = fmt.Errorf("open state store: %w", err)
			logging.SessionWarn("%v (usage is counted in memory for this session)", storeErr)
			o.kv = store.NewMemoryKV()
		} else {
			o.kv = local
		}
	}
	if o.completer == nil {
		o.completer = generator.NewGeminiClient(cfg.Generation)
	}
	if o.boot == nil {
		o.boot = sandbox.BootFromConfig(cfg.Sandbox)
	}

	s := &Session{
		ID:     uuid.NewString(),
		Config: cfg,
		Store:  o.kv,
		Bus:    events.NewBus(),
	}
	s.Usage = usage.NewTracker(ctx, o.kv, cfg.Usage.StorageKey, cfg.Usage.DailyLimit,
		usage.WithClock(o.now), usage.WithLocation(cfg.GetLocation()), usage.WithStoreError(storeErr))
	s.Runtimes = sandbox.NewProvider(o.boot)
	s.Generator = generator.New(o.completer, generator.OptionsFromConfig(cfg.Generation, cfg.Sandbox), o.genOpts...)
	s.Pipeline = pipeline.New(pipeline.Deps{
		Runtimes:  s.Runtimes,
		Reader:    workbook.NewReader(cfg.Sandbox.ScratchName),
		Generator: s.Generator,
		Executor:  sandbox.NewExecutor(s.Runtimes, cfg.Sandbox),
		Usage:     s.Usage,
		Bus:       s.Bus,
		Now:       o.now,
	}, pipeline.Options{
		Placeholders:   cfg.Pipeline.Placeholders,
		DownloadSuffix: cfg.Pipeline.DownloadSuffix,
	})

	logging.Session("session %s ready (backend=%s, %d/%d generations left today)",
		s.ID, cfg.Sandbox.Backend, s.Usage.Remaining(), s.Usage.Limit())
	return s, nil
}

// Close waits for a background run, then releases the runtime, the event
// bus and the store. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.Pipeline.Wait()
		s.Bus.Close()
		s.closeErr = errors.Join(s.Runtimes.Close(), s.Store.Close())
		logging.Session("session %s closed", s.ID)
	})
	return s.closeErr
}
