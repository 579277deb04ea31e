package workbook

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Template builds a starter workbook: the placeholder instruction in A1 and
// a small example table underneath.
func Template(placeholder string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows := [][]interface{}{
		{placeholder},
		{"Item", "Quantity", "Unit price"},
		{"Notebook", 3, 2.5},
		{"Pencil", 12, 0.4},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write template row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 48); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	return buf.Bytes(), nil
}
