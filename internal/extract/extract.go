// Package extract pulls plain text out of uploaded documents so it can
// be chunked and indexed. Formats are recognized by file extension.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupported is returned for file types no extractor handles.
var ErrUnsupported = errors.New("unsupported file format")

// File extracts text from path and reports the source format
// ("pdf", "docx" or "excel").
func File(path string) (text, format string, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = PDF(path)
		return text, "pdf", err
	case ".docx":
		text, err = DOCX(path)
		return text, "docx", err
	case ".xlsx", ".xlsm":
		text, err = XLSX(path)
		return text, "excel", err
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
}

func PDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text %s: %w", path, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text %s: %w", path, err)
	}
	return buf.String(), nil
}

// XLSX renders every sheet as tab-separated rows under a
// "Sheet: <name>" header so sheet context survives chunking.
func XLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	var sheets []string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", name, err)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Sheet: %s\n", name)
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
		sheets = append(sheets, b.String())
	}
	return strings.Join(sheets, "\n"), nil
}
