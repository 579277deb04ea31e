package pipeline

import (
	"path/filepath"
	"strings"
)

// SpreadsheetExt is the only upload extension accepted.
const SpreadsheetExt = ".xlsx"

// AcceptsFile reports whether name looks like an .xlsx upload.
func AcceptsFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), SpreadsheetExt)
}

// DownloadName derives the result file name: the upload's base name with
// its extension replaced by suffix + ".xlsx" ("sales.xlsx" -> "sales_edited.xlsx").
func DownloadName(upload, suffix string) string {
	base := filepath.Base(strings.ReplaceAll(upload, "\\", "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		stem = "spreadsheet"
	}
	return stem + suffix + SpreadsheetExt
}
