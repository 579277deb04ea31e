package generator

import (
	"fmt"
	"strconv"
	"strings"

	"sheetwright/internal/workbook"
)

// Contract is the file-level agreement every generated script must honour.
type Contract struct {
	InputName       string
	OutputName      string
	ForbiddenImport string
}

// SystemPrompt fixes the rules of the generated script.
func SystemPrompt(c Contract) string {
	var b strings.Builder
	b.WriteString("You write Python 3 scripts that transform one Excel workbook using pandas and openpyxl.\n")
	b.WriteString("Follow these rules exactly:\n")
	fmt.Fprintf(&b, "- Read the workbook from %q in the current directory.\n", c.InputName)
	fmt.Fprintf(&b, "- Save the result to %q in the current directory. The run fails if %s does not exist when the script ends.\n", c.OutputName, c.OutputName)
	if c.ForbiddenImport != "" {
		fmt.Fprintf(&b, "- Never import %s. Use openpyxl as the pandas Excel engine.\n", c.ForbiddenImport)
	}
	b.WriteString("- print() short progress messages written in the same language as the instruction.\n")
	fmt.Fprintf(&b, "- Cell %s of the active sheet holds the instruction itself. Keep, change or remove it exactly as the instruction says; if the instruction does not mention it, leave it unchanged.\n", workbook.InstructionCell)
	b.WriteString("- Reply with a single ```python fenced code block and nothing else.\n")
	return b.String()
}

// UserPrompt embeds the instruction text and column list verbatim.
func UserPrompt(instr workbook.Instruction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Instruction (cell %s):\n", workbook.InstructionCell)
	b.WriteString(instr.Text)
	b.WriteString("\n\nColumns of the active sheet, in order:\n")
	b.WriteString(quoteList(instr.Columns))
	b.WriteString("\n")
	return b.String()
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = strconv.Quote(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
