// Package pipeline drives one spreadsheet through boot, read, generate and
// execute, recording an append-only log and publishing progress events.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sheetwright/internal/events"
	"sheetwright/internal/generator"
	"sheetwright/internal/logging"
	"sheetwright/internal/sandbox"
	"sheetwright/internal/workbook"
)

// RuntimeSource hands out the session runtime.
type RuntimeSource interface {
	Runtime(ctx context.Context) (sandbox.Runtime, error)
}

// Reader extracts the instruction from an upload.
type Reader interface {
	Read(ctx context.Context, files workbook.Files, data []byte) workbook.Result
}

// ScriptGenerator turns an instruction into a script.
type ScriptGenerator interface {
	Ready() error
	Generate(ctx context.Context, instr workbook.Instruction, notify func(generator.RetryNotice)) (string, error)
}

// Executor runs a script against the uploaded bytes.
type Executor interface {
	Execute(ctx context.Context, script string, input []byte, onLog func(string)) ([]byte, error)
}

// Quota meters generation attempts.
type Quota interface {
	Limit() int
	Remaining() int
	TryConsume(ctx context.Context) (int, bool)
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Runtimes  RuntimeSource
	Reader    Reader
	Generator ScriptGenerator
	Executor  Executor
	Usage     Quota
	Bus       *events.Bus // optional

	Now func() time.Time // defaults to time.Now
}

// Options tune pipeline behaviour.
type Options struct {
	// Placeholders are instruction texts that count as "not filled in".
	Placeholders []string

	// DownloadSuffix is inserted before .xlsx in the result name.
	DownloadSuffix string
}

// Pipeline is the per-session state machine. At most one run is active;
// Process, Start and Retry return ErrBusy while one is.
type Pipeline struct {
	deps Deps
	opts Options

	wg sync.WaitGroup

	mu          sync.Mutex
	running     bool
	runID       string
	state       State
	upload      *Upload
	instruction *workbook.Instruction
	script      string
	artifact    *Artifact
	errMsg      string
	logs        []LogEntry
	updated     time.Time
}

// New creates an idle pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.DownloadSuffix == "" {
		opts.DownloadSuffix = "_edited"
	}
	return &Pipeline{
		deps:    deps,
		opts:    opts,
		state:   StateIdle,
		updated: deps.Now(),
	}
}

// Process runs up through every stage and blocks until the run ends.
// The returned error is the stage failure; Snapshot().Error holds the
// message shown to users.
func (p *Pipeline) Process(ctx context.Context, up Upload) error {
	if !p.acquire() {
		return ErrBusy
	}
	defer p.release()
	return p.process(ctx, up)
}

// Start is Process in the background. It returns ErrBusy synchronously
// when a run is active; Wait joins the background run.
func (p *Pipeline) Start(ctx context.Context, up Upload) error {
	if !p.acquire() {
		return ErrBusy
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release()
		_ = p.process(ctx, up)
	}()
	return nil
}

// Retry re-runs generation and execution for the last upload, reusing its
// instruction. Only valid after a failed run that got past reading.
func (p *Pipeline) Retry(ctx context.Context) error {
	if !p.acquire() {
		return ErrBusy
	}
	defer p.release()
	if err := p.prepareRetry(); err != nil {
		return err
	}
	return p.generateAndExecute(ctx)
}

// StartRetry is Retry in the background.
func (p *Pipeline) StartRetry(ctx context.Context) error {
	if !p.acquire() {
		return ErrBusy
	}
	if err := p.prepareRetry(); err != nil {
		p.release()
		return err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release()
		_ = p.generateAndExecute(ctx)
	}()
	return nil
}

// Wait blocks until background runs finish.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Busy reports whether a run is active.
func (p *Pipeline) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pipeline) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}
	p.running = true
	return true
}

func (p *Pipeline) release() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *Pipeline) process(ctx context.Context, up Upload) error {
	timer := logging.StartTimer(logging.CategoryPipeline, "run "+up.Name)
	defer timer.Stop()

	p.mu.Lock()
	p.runID = uuid.NewString()
	p.upload = &Upload{Name: up.Name, Data: up.Data}
	p.instruction = nil
	p.script = ""
	p.artifact = nil
	p.errMsg = ""
	p.logs = nil
	p.mu.Unlock()

	logging.Pipeline("run %s: processing %s (%d bytes)", p.currentRunID(), up.Name, len(up.Data))

	p.setState(StateBootingRuntime)
	p.log(SeverityInfo, "Preparing the Python environment...")
	rt, err := p.deps.Runtimes.Runtime(ctx)
	if err != nil {
		return p.fail(ctx, fmt.Errorf("the Python environment could not start: %w", err))
	}

	p.setState(StateReadingFile)
	p.log(SeverityInfo, fmt.Sprintf("Reading %s...", up.Name))
	res := p.deps.Reader.Read(ctx, rt.Workspace(), up.Data)
	if res.Err != nil {
		return p.fail(ctx, fmt.Errorf("could not read %s: %w", up.Name, res.Err))
	}
	if p.isPlaceholder(res.Instruction.Text) {
		return p.fail(ctx, ErrEmptyInstruction)
	}

	instr := res.Instruction
	p.mu.Lock()
	p.instruction = &instr
	p.mu.Unlock()
	p.log(SeveritySuccess, fmt.Sprintf("Instruction: %q", strings.TrimSpace(instr.Text)))
	if len(instr.Columns) > 0 {
		p.log(SeverityInfo, fmt.Sprintf("Columns: %s", strings.Join(instr.Columns, ", ")))
	}

	return p.generateAndExecute(ctx)
}

func (p *Pipeline) prepareRetry() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateFailed || p.instruction == nil || p.upload == nil {
		return ErrNothingToRetry
	}
	p.runID = uuid.NewString()
	p.script = ""
	p.artifact = nil
	p.errMsg = ""
	return nil
}

// generateAndExecute runs the stages that follow a successful read.
func (p *Pipeline) generateAndExecute(ctx context.Context) error {
	p.mu.Lock()
	instr := *p.instruction
	up := *p.upload
	p.mu.Unlock()

	p.setState(StateGeneratingCode)
	if err := p.deps.Generator.Ready(); err != nil {
		return p.fail(ctx, err)
	}
	remaining, ok := p.deps.Usage.TryConsume(ctx)
	if !ok {
		return p.fail(ctx, fmt.Errorf("%w: all %d generations for today are used, the limit resets tomorrow", ErrQuotaExhausted, p.deps.Usage.Limit()))
	}
	p.log(SeverityInfo, fmt.Sprintf("Generating the script (%d generation(s) left today)...", remaining))

	script, err := p.deps.Generator.Generate(ctx, instr, p.onRetry)
	if err != nil {
		return p.fail(ctx, err)
	}
	p.mu.Lock()
	p.script = script
	p.mu.Unlock()
	p.log(SeverityCode, script)

	p.setState(StateExecutingCode)
	p.log(SeverityInfo, "Running the script...")
	out, err := p.deps.Executor.Execute(ctx, script, up.Data, func(line string) {
		p.log(SeverityInfo, line)
	})
	if err != nil {
		return p.fail(ctx, err)
	}

	name := DownloadName(up.Name, p.opts.DownloadSuffix)
	p.mu.Lock()
	p.artifact = &Artifact{Name: name, Data: out}
	p.mu.Unlock()

	p.setState(StateCompleted)
	p.log(SeveritySuccess, fmt.Sprintf("Done: %s is ready to download.", name))
	logging.Pipeline("run %s completed: %s (%d bytes)", p.currentRunID(), name, len(out))
	p.publish(events.Event{Kind: events.KindDone, State: string(StateCompleted)})
	return nil
}

func (p *Pipeline) onRetry(n generator.RetryNotice) {
	msg := fmt.Sprintf("The generation service is busy (%s). Retry %d/%d in %.1fs...",
		n.Reason, n.Attempt, n.MaxRetries, n.Delay.Seconds())
	p.publish(events.Event{Kind: events.KindRetry, Message: msg})
	p.log(SeverityWarning, msg)
}

// fail moves to StateFailed with one error entry and returns err. Only the
// caller's own context counts as an interruption; deadlines inside a stage
// are reported by that stage's error.
func (p *Pipeline) fail(ctx context.Context, err error) error {
	msg := Describe(err)
	if ctx.Err() != nil {
		msg = interruptedMessage
	}
	p.mu.Lock()
	p.errMsg = msg
	p.mu.Unlock()

	logging.PipelineWarn("run %s failed: %v", p.currentRunID(), err)
	p.setState(StateFailed)
	p.log(SeverityError, msg)
	p.publish(events.Event{Kind: events.KindDone, State: string(StateFailed), Message: msg})
	return err
}

func (p *Pipeline) isPlaceholder(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return true
	}
	for _, ph := range p.opts.Placeholders {
		if strings.EqualFold(t, strings.TrimSpace(ph)) {
			return true
		}
	}
	return false
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.updated = p.deps.Now()
	p.mu.Unlock()

	logging.PipelineDebug("state -> %s", s)
	p.publish(events.Event{Kind: events.KindState, State: string(s)})
}

func (p *Pipeline) log(sev Severity, msg string) {
	entry := LogEntry{Time: p.deps.Now(), Message: msg, Severity: sev}
	p.mu.Lock()
	p.logs = append(p.logs, entry)
	pos := len(p.logs)
	p.mu.Unlock()

	p.publish(events.Event{Kind: events.KindLog, Time: entry.Time, Severity: string(sev), Message: msg, Position: pos})
}

func (p *Pipeline) publish(e events.Event) {
	if p.deps.Bus == nil {
		return
	}
	if e.RunID == "" {
		e.RunID = p.currentRunID()
	}
	p.deps.Bus.Publish(e)
}

func (p *Pipeline) currentRunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runID
}

// Snapshot returns a copy of the current state.
func (p *Pipeline) Snapshot() Snapshot {
	remaining := p.deps.Usage.Remaining()

	p.mu.Lock()
	defer p.mu.Unlock()
	s := Snapshot{
		RunID:     p.runID,
		State:     p.state,
		Script:    p.script,
		Error:     p.errMsg,
		Remaining: remaining,
		UpdatedAt: p.updated,
	}
	if p.upload != nil {
		s.FileName = p.upload.Name
	}
	if p.instruction != nil {
		instr := workbook.Instruction{
			Text:    p.instruction.Text,
			Columns: append([]string(nil), p.instruction.Columns...),
		}
		s.Instruction = &instr
	}
	if p.artifact != nil {
		s.Download = p.artifact.Name
	}
	return s
}

// Logs returns a copy of the log in insertion order.
func (p *Pipeline) Logs() []LogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]LogEntry(nil), p.logs...)
}

// Artifact returns the output of the last completed run.
func (p *Pipeline) Artifact() (Artifact, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.artifact == nil {
		return Artifact{}, false
	}
	return Artifact{Name: p.artifact.Name, Data: p.artifact.Data}, true
}
