package generator

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"sheetwright/internal/config"
	"sheetwright/internal/logging"
	"sheetwright/internal/workbook"
)

// Options configures a Generator.
type Options struct {
	Model       string
	Temperature float32
	MaxRetries  int
	Backoff     Backoff
	Contract    Contract
}

// OptionsFromConfig derives generator options from the loaded config.
func OptionsFromConfig(gen config.GenerationConfig, sb config.SandboxConfig) Options {
	return Options{
		Model:       gen.Model,
		Temperature: gen.Temperature,
		MaxRetries:  gen.MaxRetries,
		Backoff: Backoff{
			Base:      gen.GetBaseDelay(),
			Factor:    gen.Factor,
			MaxJitter: gen.GetMaxJitter(),
		},
		Contract: Contract{
			InputName:       sb.InputName,
			OutputName:      sb.OutputName,
			ForbiddenImport: sb.ForbiddenImport,
		},
	}
}

// Generator produces scripts from instructions. Every call is a fresh
// request; nothing is cached across instructions.
type Generator struct {
	completer Completer
	opts      Options
	system    string

	sleep func(ctx context.Context, d time.Duration) error
	rnd   func() float64
}

// Option customises a Generator.
type Option func(*Generator)

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Generator) { g.sleep = sleep }
}

// WithRand replaces the jitter source. rnd must return values in [0, 1).
func WithRand(rnd func() float64) Option {
	return func(g *Generator) { g.rnd = rnd }
}

// New creates a Generator over c.
func New(c Completer, opts Options, extra ...Option) *Generator {
	if opts.Backoff.Base <= 0 || opts.Backoff.Factor <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	g := &Generator{
		completer: c,
		opts:      opts,
		system:    SystemPrompt(opts.Contract),
		sleep:     sleepContext,
		rnd:       rand.Float64,
	}
	for _, o := range extra {
		o(g)
	}
	return g
}

// Ready reports configuration problems that would make every call fail.
func (g *Generator) Ready() error {
	if r, ok := g.completer.(readiness); ok {
		return r.Ready()
	}
	return nil
}

// Generate asks the service for a script implementing instr. Retryable
// failures are reported through notify (which may be nil) and retried up to
// MaxRetries times; the final failure is a *GenerationError.
func (g *Generator) Generate(ctx context.Context, instr workbook.Instruction, notify func(RetryNotice)) (string, error) {
	req := Request{
		Model:             g.opts.Model,
		SystemInstruction: g.system,
		Prompt:            UserPrompt(instr),
		Temperature:       g.opts.Temperature,
	}

	for attempt := 0; ; attempt++ {
		script, err := g.attempt(ctx, req)
		result := g.classify(err, attempt)
		logging.APIDebug("generation attempt %d: %s", attempt+1, result)

		switch result {
		case attemptOK:
			logging.API("script generated after %d call(s), %d bytes", attempt+1, len(script))
			return script, nil

		case attemptRetry:
			notice := RetryNotice{
				Attempt:    attempt + 1,
				MaxRetries: g.opts.MaxRetries,
				Delay:      g.opts.Backoff.Delay(attempt, g.rnd),
				Reason:     CleanMessage(errorText(err)),
			}
			logging.APIWarn("retryable generation failure (%s), retry %d/%d in %s",
				notice.Reason, notice.Attempt, notice.MaxRetries, notice.Delay)
			if notify != nil {
				notify(notice)
			}
			if serr := g.sleep(ctx, notice.Delay); serr != nil {
				return "", newGenerationError(serr, attempt+1)
			}

		case attemptFatal:
			gerr := newGenerationError(err, attempt+1)
			logging.APIError("generation failed after %d call(s): %s (%v)", attempt+1, gerr.Kind, err)
			return "", gerr
		}
	}
}

func (g *Generator) attempt(ctx context.Context, req Request) (string, error) {
	text, err := g.completer.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	script := ExtractScript(text)
	if script == "" {
		return "", ErrMalformedResponse
	}
	return script, nil
}

func (g *Generator) classify(err error, attempt int) outcome {
	switch {
	case err == nil:
		return attemptOK
	case IsRetryable(err) && attempt < g.opts.MaxRetries:
		return attemptRetry
	}
	return attemptFatal
}
