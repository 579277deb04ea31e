package pipeline

import (
	"time"

	"sheetwright/internal/workbook"
)

// State is the pipeline's position in a run.
type State string

const (
	StateIdle           State = "idle"
	StateBootingRuntime State = "booting_runtime"
	StateReadingFile    State = "reading_file"
	StateGeneratingCode State = "generating_code"
	StateExecutingCode  State = "executing_code"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
)

// Terminal reports whether a run has ended in s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Severity tags a log entry for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityCode    Severity = "code"
)

// LogEntry is one line of the run log. Entries are never modified.
type LogEntry struct {
	Time     time.Time `json:"time"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
}

// Upload is a spreadsheet handed to the pipeline.
type Upload struct {
	Name string
	Data []byte
}

// Artifact is the spreadsheet a completed run produced.
type Artifact struct {
	Name string
	Data []byte
}

// Snapshot is a copy of the pipeline's externally visible state.
type Snapshot struct {
	RunID       string                `json:"run_id,omitempty"`
	State       State                 `json:"state"`
	FileName    string                `json:"file_name,omitempty"`
	Instruction *workbook.Instruction `json:"instruction,omitempty"`
	Script      string                `json:"script,omitempty"`
	Error       string                `json:"error,omitempty"`
	Download    string                `json:"download,omitempty"`
	Remaining   int                   `json:"remaining"`
	UpdatedAt   time.Time             `json:"updated_at"`
}
