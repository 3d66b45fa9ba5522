// Package spreadsheet loads raw taxpayer identifiers from .xlsx, .csv or
// plain-text files.
package spreadsheet

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/turtacn/nfe-ingest/pkg/errors"
)

// DefaultColumn is the header holding identifiers.
const DefaultColumn = "CNPJ"

const bom = "\ufeff"

// Options selects the sheet and column to read.
type Options struct {
	Column string // header name, matched case-insensitively
	Sheet  string // xlsx only; empty selects the first sheet
}

// Load reads identifiers from path using the default sheet.
func Load(path, column string) ([]string, error) {
	return LoadWithOptions(path, Options{Column: column})
}

// LoadWithOptions reads identifiers from path. Values are returned as found;
// blank cells are dropped and validation is left to the caller.
func LoadWithOptions(path string, opts Options) ([]string, error) {
	if opts.Column == "" {
		opts.Column = DefaultColumn
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return loadXLSX(path, opts)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, sourceError(err, path)
		}
		defer f.Close()
		return readCSV(f, opts.Column, path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, sourceError(err, path)
		}
		defer f.Close()
		return readLines(f, path)
	}
}

func loadXLSX(path string, opts Options) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, sourceError(err, path)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	// Formatted values keep the leading zeros of numeric CNPJ cells styled
	// "00000000000000"; raw values back up cells displayed in scientific notation.
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, sourceError(err, path).WithDetail("sheet=" + sheet)
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, sourceError(err, path).WithDetail("sheet=" + sheet)
	}
	return columnValues(mergeScientific(rows, raw), opts.Column, path)
}

// mergeScientific replaces formatted cells such as "1.12223E+13" with their
// raw value.
func mergeScientific(formatted, raw [][]string) [][]string {
	for r, row := range formatted {
		for c, v := range row {
			if !isScientific(v) || r >= len(raw) || c >= len(raw[r]) {
				continue
			}
			row[c] = raw[r][c]
		}
	}
	return formatted
}

func isScientific(v string) bool {
	v = strings.TrimSpace(v)
	i := strings.IndexAny(v, "Ee")
	if i <= 0 || i == len(v)-1 {
		return false
	}
	if _, err := strconv.ParseFloat(v, 64); err != nil {
		return false
	}
	return true
}

func readCSV(r io.Reader, column, path string) ([]string, error) {
	br := bufio.NewReader(r)
	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, sourceError(err, path)
	}
	return columnValues(rows, column, path)
}

// sniffDelimiter peeks at the header line and picks ';' when it appears
// there and ',' does not, as spreadsheet exports in pt-BR locales do.
func sniffDelimiter(br *bufio.Reader) rune {
	head, _ := br.Peek(4096)
	line := string(head)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.Contains(line, ";") && !strings.Contains(line, ",") {
		return ';'
	}
	return ','
}

func readLines(r io.Reader, path string) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), bom))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, sourceError(err, path)
	}
	return out, nil
}

func columnValues(rows [][]string, column, path string) ([]string, error) {
	if len(rows) == 0 {
		return nil, errors.New(errors.CodeIdentifierSource, "identifier file is empty").WithDetail("path=" + path)
	}

	idx := -1
	for i, cell := range rows[0] {
		if sameHeader(cell, column) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errors.Newf(errors.CodeIdentifierSource, "column %q not found", column).WithDetail("path=" + path)
	}

	var out []string
	for _, row := range rows[1:] {
		if idx >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[idx]); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

func sameHeader(cell, column string) bool {
	cell = strings.TrimSpace(strings.TrimPrefix(cell, bom))
	return strings.EqualFold(norm.NFKC.String(cell), norm.NFKC.String(strings.TrimSpace(column)))
}

func sourceError(err error, path string) *errors.AppError {
	return errors.Wrap(err, errors.CodeIdentifierSource, "failed to read identifier file").WithDetail("path=" + path)
}
