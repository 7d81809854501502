// Package source produces raw order tables from report files or the Monta API.
package source

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/aardg/massabalans/internal/normalize"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadExport loads a CSV report or an XLSX export into a raw table. XLSX
// cells are read unformatted so serial dates keep their numeric form.
func ReadExport(path string) (normalize.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readXLSX(path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return normalize.Table{}, pkgerrors.Wrap(pkgerrors.CodeSourceUnavailable, err, "open export").
				WithDetails(map[string]any{"path": path})
		}
		defer f.Close()
		return ReadCSV(f)
	}
}

// ReadCSV reads a comma or semicolon separated report with a header row.
func ReadCSV(r io.Reader) (normalize.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return normalize.Table{}, pkgerrors.Wrap(pkgerrors.CodeSourceUnavailable, err, "read csv export")
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.Comma = detectDelimiter(data)

	records, err := reader.ReadAll()
	if err != nil {
		return normalize.Table{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse csv export")
	}
	return tableFromRows(records)
}

func detectDelimiter(sample []byte) rune {
	line := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		line = sample[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

func readXLSX(path string) (normalize.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return normalize.Table{}, pkgerrors.Wrap(pkgerrors.CodeSourceUnavailable, err, "open xlsx export").
			WithDetails(map[string]any{"path": path})
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return normalize.Table{}, pkgerrors.New(pkgerrors.CodeValidation, "xlsx export has no worksheets").
			WithDetails(map[string]any{"path": path})
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return normalize.Table{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read xlsx rows").
			WithDetails(map[string]any{"path": path, "sheet": sheets[0]})
	}
	return tableFromRows(rows)
}

func tableFromRows(rows [][]string) (normalize.Table, error) {
	if len(rows) == 0 {
		return normalize.Table{}, pkgerrors.New(pkgerrors.CodeValidation, "export has no header row")
	}
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	return normalize.NewTable(headers, rows[1:]), nil
}
