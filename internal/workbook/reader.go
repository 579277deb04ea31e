// Package workbook reads the instruction cell and header row of an uploaded
// spreadsheet, and builds the starter template users fill in.
package workbook

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"sheetwright/internal/logging"
)

// InstructionCell is where users write what should happen to the sheet.
const InstructionCell = "A1"

// Instruction is what the generator needs from an upload.
type Instruction struct {
	Text    string   `json:"text"`
	Columns []string `json:"columns"`
}

// Result carries the extracted instruction; Err is set instead of failing
// so the caller decides whether an empty instruction is fatal.
type Result struct {
	Instruction Instruction
	Err         error
}

// Files is the part of the sandbox workspace the reader writes into.
type Files interface {
	WriteFile(name string, data []byte) error
	Path(name string) (string, error)
}

// Reader extracts instructions from .xlsx uploads.
type Reader struct {
	scratchName string
}

// NewReader returns a reader that stages uploads under scratchName.
func NewReader(scratchName string) *Reader {
	return &Reader{scratchName: scratchName}
}

// Read stages data in files under the scratch name, then reads it twice:
// once for the raw A1 value and once for the tabular header row.
func (r *Reader) Read(ctx context.Context, files Files, data []byte) Result {
	empty := Result{Instruction: Instruction{Columns: []string{}}}
	fail := func(err error) Result {
		logging.WorkbookWarn("read failed: %v", err)
		empty.Err = err
		return empty
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := files.WriteFile(r.scratchName, data); err != nil {
		return fail(fmt.Errorf("stage upload: %w", err))
	}
	path, err := files.Path(r.scratchName)
	if err != nil {
		return fail(err)
	}

	text, err := readInstruction(path)
	if err != nil {
		return fail(err)
	}
	columns, err := readColumns(path)
	if err != nil {
		return fail(err)
	}

	logging.Workbook("instruction %d chars, %d columns", len(text), len(columns))
	return Result{Instruction: Instruction{Text: text, Columns: columns}}
}

// readInstruction returns the uncoerced value of A1 on the active sheet.
func readInstruction(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := activeSheet(f)
	if sheet == "" {
		return "", fmt.Errorf("workbook has no sheets")
	}
	value, err := f.GetCellValue(sheet, InstructionCell, excelize.Options{RawCellValue: true})
	if err != nil {
		return "", fmt.Errorf("read %s!%s: %w", sheet, InstructionCell, err)
	}
	return value, nil
}

// readColumns returns the header labels the way pandas names them: the
// first non-empty row, blank labels as "Unnamed: <i>", duplicates suffixed.
func readColumns(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := activeSheet(f)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read rows of %s: %w", sheet, err)
	}

	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		return headerLabels(row), nil
	}
	return []string{}, nil
}

func headerLabels(row []string) []string {
	labels := make([]string, len(row))
	seen := make(map[string]int, len(row))
	for i, cell := range row {
		label := cell
		if label == "" {
			label = "Unnamed: " + strconv.Itoa(i)
		}
		if n, dup := seen[label]; dup {
			seen[label] = n + 1
			label = label + "." + strconv.Itoa(n+1)
		} else {
			seen[label] = 0
		}
		labels[i] = label
	}
	return labels
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

func activeSheet(f *excelize.File) string {
	if name := f.GetSheetName(f.GetActiveSheetIndex()); name != "" {
		return name
	}
	if list := f.GetSheetList(); len(list) > 0 {
		return list[0]
	}
	return ""
}
