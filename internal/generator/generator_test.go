package generator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetwright/internal/config"
	"sheetwright/internal/workbook"
)

// scriptedCompleter replays a fixed sequence of replies.
type scriptedCompleter struct {
	mu       sync.Mutex
	replies  []reply
	requests []Request
}

type reply struct {
	text string
	err  error
}

func (s *scriptedCompleter) Complete(_ context.Context, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.requests) > len(s.replies) {
		return "", errors.New("unexpected call")
	}
	r := s.replies[len(s.requests)-1]
	return r.text, r.err
}

func (s *scriptedCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func repeat(r reply, n int) []reply {
	out := make([]reply, n)
	for i := range out {
		out[i] = r
	}
	return out
}

var (
	tooMany    = reply{err: &ServiceError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "Resource has been exhausted"}}
	overloaded = reply{err: &ServiceError{Code: 503, Status: "UNAVAILABLE", Message: "The model is overloaded."}}
	fenced     = reply{text: "Sure!\n```python\nimport pandas as pd\ndf = pd.read_excel('input.xlsx')\n```\n"}
)

func testOptions() Options {
	return OptionsFromConfig(config.DefaultConfig().Generation, config.DefaultConfig().Sandbox)
}

// newTestGenerator records sleeps instead of waiting.
func newTestGenerator(c Completer) (*Generator, *[]time.Duration) {
	var slept []time.Duration
	g := New(c, testOptions(),
		WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
		WithRand(func() float64 { return 0.5 }),
	)
	return g, &slept
}

var doubleC = workbook.Instruction{Text: "Double column C", Columns: []string{"A", "B", "C"}}

func TestGenerate_FirstCallSucceeds(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{fenced}}
	g, slept := newTestGenerator(c)

	script, err := g.Generate(context.Background(), doubleC, nil)
	require.NoError(t, err)
	assert.Equal(t, "import pandas as pd\ndf = pd.read_excel('input.xlsx')", script)
	assert.Empty(t, *slept)

	require.Len(t, c.requests, 1)
	req := c.requests[0]
	assert.Equal(t, "gemini-2.5-flash", req.Model)
	assert.InDelta(t, 0.1, req.Temperature, 1e-6)
	assert.Contains(t, req.Prompt, "Double column C")
	assert.Contains(t, req.Prompt, `["A", "B", "C"]`)
	assert.Contains(t, req.SystemInstruction, "output.xlsx")
}

func TestGenerate_RetriesThroughRateLimits(t *testing.T) {
	c := &scriptedCompleter{replies: append(repeat(tooMany, 3), fenced)}
	g, slept := newTestGenerator(c)

	var notices []RetryNotice
	script, err := g.Generate(context.Background(), doubleC, func(n RetryNotice) {
		notices = append(notices, n)
	})
	require.NoError(t, err)
	assert.NotEmpty(t, script)
	assert.Equal(t, 4, c.calls())

	require.Len(t, notices, 3)
	b := DefaultBackoff()
	for i, n := range notices {
		assert.Equal(t, i+1, n.Attempt)
		assert.Equal(t, 8, n.MaxRetries)
		assert.Equal(t, b.Delay(i, func() float64 { return 0.5 }), n.Delay)
		assert.Equal(t, "Resource has been exhausted", n.Reason)
	}
	assert.Equal(t, []time.Duration{notices[0].Delay, notices[1].Delay, notices[2].Delay}, *slept)
}

func TestGenerate_GivesUpAfterMaxRetries(t *testing.T) {
	c := &scriptedCompleter{replies: repeat(tooMany, 20)}
	g, slept := newTestGenerator(c)

	notified := 0
	_, err := g.Generate(context.Background(), doubleC, func(RetryNotice) { notified++ })

	var gerr *GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, KindQuotaExceeded, gerr.Kind)
	assert.Equal(t, 9, gerr.Attempts)
	assert.Equal(t, 9, c.calls(), "1 call plus 8 retries")
	assert.Equal(t, 8, notified)
	assert.Len(t, *slept, 8)
}

func TestGenerate_OverloadHasItsOwnMessage(t *testing.T) {
	c := &scriptedCompleter{replies: repeat(overloaded, 9)}
	g, _ := newTestGenerator(c)

	_, err := g.Generate(context.Background(), doubleC, nil)
	var gerr *GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, KindOverloaded, gerr.Kind)
	assert.Contains(t, gerr.Error(), "overloaded")
}

func TestGenerate_NonRetryableStopsImmediately(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{
		{err: &ServiceError{Code: 400, Status: "INVALID_ARGUMENT", Message: "model not found"}},
		fenced,
	}}
	g, slept := newTestGenerator(c)

	_, err := g.Generate(context.Background(), doubleC, nil)
	var gerr *GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, KindService, gerr.Kind)
	assert.Equal(t, 1, c.calls())
	assert.Empty(t, *slept)
}

func TestGenerate_EmptyAndMalformedResponses(t *testing.T) {
	for name, tc := range map[string]struct {
		text string
		kind Kind
	}{
		"empty":     {text: "  \n", kind: KindEmptyResponse},
		"malformed": {text: "```python\n```", kind: KindMalformedResponse},
	} {
		t.Run(name, func(t *testing.T) {
			c := &scriptedCompleter{replies: []reply{{text: tc.text}}}
			g, _ := newTestGenerator(c)

			_, err := g.Generate(context.Background(), doubleC, nil)
			var gerr *GenerationError
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, tc.kind, gerr.Kind)
			assert.Equal(t, 1, c.calls())
		})
	}
}

func TestGenerate_CancelDuringBackoff(t *testing.T) {
	c := &scriptedCompleter{replies: repeat(tooMany, 9)}
	ctx, cancel := context.WithCancel(context.Background())
	g := New(c, testOptions(), WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := g.Generate(ctx, doubleC, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, c.calls())
}

func TestGenerator_Ready(t *testing.T) {
	g := New(&scriptedCompleter{}, testOptions())
	assert.NoError(t, g.Ready())

	gemini := New(NewGeminiClient(config.GenerationConfig{Model: "gemini-2.5-flash"}), testOptions())
	var cfgErr *config.ConfigurationError
	assert.ErrorAs(t, gemini.Ready(), &cfgErr)

	keyed := New(NewGeminiClient(config.GenerationConfig{APIKey: "test-key"}), testOptions())
	assert.NoError(t, keyed.Ready())
}
