package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"sheetwright/internal/events"
	"sheetwright/internal/pipeline"
)

var (
	errorColor   = lipgloss.Color("#e53935")
	successColor = lipgloss.Color("#8BC34A")
	warningColor = lipgloss.Color("#FFC107")
	infoColor    = lipgloss.Color("#2196F3")
	mutedColor   = lipgloss.Color("#7a8599")
)

// printer renders the run log for the terminal. Log events drive it, and
// entries whose events were dropped by the bus are read back from logs.
type printer struct {
	mu  sync.Mutex
	out io.Writer

	logs    func() []pipeline.LogEntry
	printed int // entries of the run log already written

	showScript bool
	renderer   *glamour.TermRenderer

	styles map[pipeline.Severity]lipgloss.Style
	time   lipgloss.Style
}

func newPrinter(out io.Writer, showScript bool, logs func() []pipeline.LogEntry) *printer {
	p := &printer{
		out:        out,
		logs:       logs,
		showScript: showScript,
		styles: map[pipeline.Severity]lipgloss.Style{
			pipeline.SeverityInfo:    lipgloss.NewStyle().Foreground(infoColor),
			pipeline.SeveritySuccess: lipgloss.NewStyle().Foreground(successColor).Bold(true),
			pipeline.SeverityWarning: lipgloss.NewStyle().Foreground(warningColor),
			pipeline.SeverityError:   lipgloss.NewStyle().Foreground(errorColor).Bold(true),
			pipeline.SeverityCode:    lipgloss.NewStyle().Foreground(mutedColor),
		},
		time: lipgloss.NewStyle().Foreground(mutedColor),
	}
	if showScript {
		// Falls back to plain text when no renderer can be built.
		p.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
	}
	return p
}

// Consume prints the run log until ch is closed, then prints whatever is
// still missing.
func (p *printer) Consume(ch <-chan events.Event) {
	for e := range ch {
		if e.Kind != events.KindLog || e.Position == 0 {
			continue
		}
		p.deliver(e)
	}
	p.catchUp(0)
}

func (p *printer) deliver(e events.Event) {
	if e.Position <= p.printed {
		return
	}
	if e.Position > p.printed+1 {
		p.catchUp(e.Position - 1)
	}
	p.entry(e)
	p.printed = e.Position
}

// catchUp prints entries up to position upto (0 means all of them).
func (p *printer) catchUp(upto int) {
	if p.logs == nil {
		return
	}
	entries := p.logs()
	if upto == 0 || upto > len(entries) {
		upto = len(entries)
	}
	for i := p.printed; i < upto; i++ {
		le := entries[i]
		p.entry(events.Event{
			Kind:     events.KindLog,
			Time:     le.Time,
			Severity: string(le.Severity),
			Message:  le.Message,
			Position: i + 1,
		})
	}
	if upto > p.printed {
		p.printed = upto
	}
}

func (p *printer) entry(e events.Event) {
	sev := pipeline.Severity(e.Severity)
	if sev == pipeline.SeverityCode {
		p.script(e)
		return
	}
	style, ok := p.styles[sev]
	if !ok {
		style = p.styles[pipeline.SeverityInfo]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s %s\n", p.time.Render(e.Time.Format("15:04:05")), style.Render(e.Message))
}

func (p *printer) script(e events.Event) {
	lines := strings.Count(strings.TrimRight(e.Message, "\n"), "\n") + 1

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.showScript {
		fmt.Fprintf(p.out, "%s %s\n", p.time.Render(e.Time.Format("15:04:05")),
			p.styles[pipeline.SeverityCode].Render(fmt.Sprintf("Generated a %d-line script (--show-script to print it)", lines)))
		return
	}
	md := "```python\n" + e.Message + "\n```\n"
	if p.renderer != nil {
		if rendered, err := p.renderer.Render(md); err == nil {
			fmt.Fprint(p.out, rendered)
			return
		}
	}
	fmt.Fprint(p.out, md)
}

// Note prints a line outside the run log.
func (p *printer) Note(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.styles[pipeline.SeverityWarning].Render(msg))
}

// Success prints a final success line.
func (p *printer) Success(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.styles[pipeline.SeveritySuccess].Render(msg))
}
