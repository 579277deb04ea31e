package pipeline

import (
	"context"
	"errors"
	"fmt"

	"sheetwright/internal/generator"
	"sheetwright/internal/workbook"
)

var (
	// ErrEmptyInstruction means the instruction cell was blank or still
	// held the template placeholder.
	ErrEmptyInstruction = fmt.Errorf("no instruction found: write what should happen to the sheet in cell %s and upload the file again", workbook.InstructionCell)

	// ErrQuotaExhausted means the daily generation limit is used up.
	ErrQuotaExhausted = errors.New("daily generation limit reached")

	// ErrBusy is returned when a run is already in progress.
	ErrBusy = errors.New("a run is already in progress")

	// ErrNothingToRetry is returned by Retry unless the last run failed
	// after its instruction was read.
	ErrNothingToRetry = errors.New("nothing to retry: upload a spreadsheet first")
)

const interruptedMessage = "the run was interrupted before it finished"

// Describe turns any stage error into the single message shown to users.
// JSON error payloads embedded by the generation service are unwrapped.
// A deadline is not treated as an interruption: stage timeouts carry their
// own message.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return interruptedMessage
	}
	return generator.CleanMessage(err.Error())
}
