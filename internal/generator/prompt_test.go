package generator

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"sheetwright/internal/workbook"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestSystemPrompt_Golden(t *testing.T) {
	g := newGoldie(t)
	g.Assert(t, "system_prompt", []byte(SystemPrompt(Contract{
		InputName:       "input.xlsx",
		OutputName:      "output.xlsx",
		ForbiddenImport: "xlsxwriter",
	})))
}

func TestUserPrompt_Golden(t *testing.T) {
	g := newGoldie(t)
	g.Assert(t, "user_prompt", []byte(UserPrompt(workbook.Instruction{
		Text:    "Double column C",
		Columns: []string{"A", "B", "C"},
	})))
}

func TestUserPrompt_EmbedsInstructionVerbatim(t *testing.T) {
	instr := workbook.Instruction{
		Text:    "Rename \"Qty\" to Quantity\nthen sort",
		Columns: []string{"Qty", "Unnamed: 1"},
	}
	p := UserPrompt(instr)
	assert.Contains(t, p, instr.Text)
	assert.Contains(t, p, `["Qty", "Unnamed: 1"]`)
}

func TestSystemPrompt_OmitsEmptyForbiddenImport(t *testing.T) {
	p := SystemPrompt(Contract{InputName: "in.xlsx", OutputName: "out.xlsx"})
	assert.NotContains(t, p, "Never import")
	assert.Contains(t, p, `"in.xlsx"`)
	assert.Contains(t, p, `"out.xlsx"`)
}
