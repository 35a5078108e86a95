// Package uploads checks flight files on the client before they are sent.
package uploads

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/utils"
)

// DefaultMaxBytes matches the backend's upload limit.
const DefaultMaxBytes int64 = 100 << 20

var allowedExtensions = map[models.SourceKind][]string{
	models.SourceExcel: {".xlsx", ".xls"},
	models.SourceSHR:   {".txt", ".json", ".xml"},
}

// Preflight rejects files the backend would refuse, before any bytes are sent.
func Preflight(name string, kind models.SourceKind, size, maxBytes int64) error {
	const op = "upload preflight"
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	allowed, ok := allowedExtensions[kind]
	if !ok {
		return utils.NewValidationError(op, fmt.Sprintf("unsupported source kind %q", kind))
	}
	if strings.TrimSpace(name) == "" {
		return utils.NewValidationError(op, "file name is required")
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !contains(allowed, ext) {
		return utils.NewValidationError(op, fmt.Sprintf("%s files must have one of %s, got %q", kind, strings.Join(allowed, ", "), ext))
	}
	if size == 0 {
		return utils.NewValidationError(op, "file is empty")
	}
	if size > maxBytes {
		return utils.NewValidationError(op, fmt.Sprintf("file is %d bytes, limit is %d", size, maxBytes))
	}
	return nil
}

// WorkbookSummary describes an Excel upload.
type WorkbookSummary struct {
	Sheets   []string
	DataRows int
}

// ProbeWorkbook opens an .xlsx stream and counts the rows below each sheet's
// header. A workbook without data rows is rejected.
func ProbeWorkbook(r io.Reader) (WorkbookSummary, error) {
	const op = "workbook probe"
	f, err := excelize.OpenReader(r)
	if err != nil {
		return WorkbookSummary{}, utils.NewAppError(op, "not a readable workbook", err)
	}
	defer f.Close()

	summary := WorkbookSummary{Sheets: f.GetSheetList()}
	for _, sheet := range summary.Sheets {
		rows, err := f.Rows(sheet)
		if err != nil {
			return WorkbookSummary{}, utils.NewAppError(op, "read sheet "+sheet, err)
		}
		count := 0
		for rows.Next() {
			cols, err := rows.Columns()
			if err != nil {
				rows.Close()
				return WorkbookSummary{}, utils.NewAppError(op, "read row", err)
			}
			if !blank(cols) {
				count++
			}
		}
		rows.Close()
		if count > 1 {
			summary.DataRows += count - 1
		}
	}
	if summary.DataRows == 0 {
		return summary, utils.NewValidationError(op, "workbook has no data rows")
	}
	return summary, nil
}

func blank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
