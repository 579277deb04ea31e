package workbook

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// dirFiles stages files in a temp directory.
type dirFiles struct {
	dir    string
	writes []string
}

func (d *dirFiles) WriteFile(name string, data []byte) error {
	d.writes = append(d.writes, name)
	return os.WriteFile(filepath.Join(d.dir, name), data, 0o644)
}

func (d *dirFiles) Path(name string) (string, error) {
	return filepath.Join(d.dir, name), nil
}

type failingFiles struct{}

func (failingFiles) WriteFile(string, []byte) error { return errors.New("read-only workspace") }
func (failingFiles) Path(string) (string, error)    { return "", errors.New("unreachable") }

func buildWorkbook(t *testing.T, build func(f *excelize.File, sheet string)) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	build(f, "Sheet1")
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestReader_ReadsInstructionAndHeaders(t *testing.T) {
	data := buildWorkbook(t, func(f *excelize.File, sheet string) {
		require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Double column C", "B", "C"}))
		require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{1, 2, 3}))
	})

	files := &dirFiles{dir: t.TempDir()}
	res := NewReader("temp_input.xlsx").Read(context.Background(), files, data)

	require.NoError(t, res.Err)
	assert.Equal(t, "Double column C", res.Instruction.Text)
	assert.Equal(t, []string{"Double column C", "B", "C"}, res.Instruction.Columns)
	assert.Equal(t, []string{"temp_input.xlsx"}, files.writes)
}

func TestReader_RawValueIsNotCoerced(t *testing.T) {
	data := buildWorkbook(t, func(f *excelize.File, sheet string) {
		require.NoError(t, f.SetCellValue(sheet, "A1", 0.5))
		style, err := f.NewStyle(&excelize.Style{NumFmt: 10}) // 0.00%
		require.NoError(t, err)
		require.NoError(t, f.SetCellStyle(sheet, "A1", "A1", style))
	})

	res := NewReader("temp_input.xlsx").Read(context.Background(), &dirFiles{dir: t.TempDir()}, data)

	require.NoError(t, res.Err)
	assert.Equal(t, "0.5", res.Instruction.Text)
}

func TestReader_BlankAndDuplicateHeaders(t *testing.T) {
	data := buildWorkbook(t, func(f *excelize.File, sheet string) {
		require.NoError(t, f.SetCellValue(sheet, "A3", "Sort by price"))
		require.NoError(t, f.SetCellValue(sheet, "C3", "Price"))
		require.NoError(t, f.SetCellValue(sheet, "D3", "Price"))
	})

	res := NewReader("temp_input.xlsx").Read(context.Background(), &dirFiles{dir: t.TempDir()}, data)

	require.NoError(t, res.Err)
	assert.Equal(t, "", res.Instruction.Text)
	assert.Equal(t, []string{"Sort by price", "Unnamed: 1", "Price", "Price.1"}, res.Instruction.Columns)
}

func TestReader_UsesActiveSheet(t *testing.T) {
	data := buildWorkbook(t, func(f *excelize.File, sheet string) {
		require.NoError(t, f.SetCellValue(sheet, "A1", "wrong sheet"))
		idx, err := f.NewSheet("Orders")
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue("Orders", "A1", "Total the orders"))
		f.SetActiveSheet(idx)
	})

	res := NewReader("temp_input.xlsx").Read(context.Background(), &dirFiles{dir: t.TempDir()}, data)

	require.NoError(t, res.Err)
	assert.Equal(t, "Total the orders", res.Instruction.Text)
}

func TestReader_FailuresAreReportedNotRaised(t *testing.T) {
	r := NewReader("temp_input.xlsx")

	t.Run("not a workbook", func(t *testing.T) {
		res := r.Read(context.Background(), &dirFiles{dir: t.TempDir()}, []byte("plain text"))
		assert.Error(t, res.Err)
		assert.Empty(t, res.Instruction.Text)
		assert.NotNil(t, res.Instruction.Columns)
		assert.Empty(t, res.Instruction.Columns)
	})

	t.Run("workspace write fails", func(t *testing.T) {
		res := r.Read(context.Background(), failingFiles{}, nil)
		assert.ErrorContains(t, res.Err, "stage upload")
	})

	t.Run("context done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res := r.Read(ctx, &dirFiles{dir: t.TempDir()}, nil)
		assert.ErrorIs(t, res.Err, context.Canceled)
	})
}

func TestTemplate_HasPlaceholderInA1(t *testing.T) {
	data, err := Template("Write your instruction for this sheet here")
	require.NoError(t, err)

	res := NewReader("temp_input.xlsx").Read(context.Background(), &dirFiles{dir: t.TempDir()}, data)
	require.NoError(t, res.Err)
	assert.Equal(t, "Write your instruction for this sheet here", res.Instruction.Text)
}
