package spreadsheet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	pkgerrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeWorkbook(t *testing.T, sheet string, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	path := filepath.Join(t.TempDir(), "cnpj.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoad_XLSX(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]interface{}{
		{"Nome", "cnpj"},
		{"Acme", "11.222.333/0001-44"},
		{"Numeric", int64(11222333000144)},
		{"Blank", ""},
		{"Short"},
	})

	ids, err := Load(path, "CNPJ")
	require.NoError(t, err)
	assert.Equal(t, []string{"11.222.333/0001-44", "11222333000144"}, ids)
}

func TestLoad_XLSXNumericCellsKeepLeadingZeros(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	padded := "00000000000000"
	zeroPadded, err := f.NewStyle(&excelize.Style{CustomNumFmt: &padded})
	require.NoError(t, err)
	scientific, err := f.NewStyle(&excelize.Style{NumFmt: 11})
	require.NoError(t, err)

	require.NoError(t, f.SetCellValue("Sheet1", "A1", "CNPJ"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", int64(1234567000189)))
	require.NoError(t, f.SetCellStyle("Sheet1", "A2", "A2", zeroPadded))
	require.NoError(t, f.SetCellValue("Sheet1", "A3", int64(11222333000144)))
	require.NoError(t, f.SetCellStyle("Sheet1", "A3", "A3", scientific))

	path := filepath.Join(t.TempDir(), "cnpj.xlsx")
	require.NoError(t, f.SaveAs(path))

	ids, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"01234567000189", "11222333000144"}, ids)
}

func TestLoadWithOptions_NamedSheet(t *testing.T) {
	path := writeWorkbook(t, "Clientes", [][]interface{}{
		{"Documento"},
		{"11222333000144"},
	})

	ids, err := LoadWithOptions(path, Options{Column: "documento", Sheet: "Clientes"})
	require.NoError(t, err)
	assert.Equal(t, []string{"11222333000144"}, ids)

	_, err = LoadWithOptions(path, Options{Sheet: "Missing"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIdentifierSource))
}

func TestLoad_CSV(t *testing.T) {
	path := writeFile(t, "ids.csv", "\ufeffname,CNPJ\nAcme,11222333000144\nOther, 99888777000166 \nNone,\n")

	ids, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"11222333000144", "99888777000166"}, ids)
}

func TestLoad_CSVSemicolon(t *testing.T) {
	path := writeFile(t, "ids.csv", "razao;cnpj\nAcme;11.222.333/0001-44\n")

	ids, err := Load(path, "CNPJ")
	require.NoError(t, err)
	assert.Equal(t, []string{"11.222.333/0001-44"}, ids)
}

func TestLoad_CSVMissingColumn(t *testing.T) {
	path := writeFile(t, "ids.csv", "name\nAcme\n")

	_, err := Load(path, "CNPJ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIdentifierSource))
}

func TestLoad_Text(t *testing.T) {
	path := writeFile(t, "ids.txt", "# clients\n11222333000144\n\n  99888777000166\n")

	ids, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"11222333000144", "99888777000166"}, ids)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.xlsx"), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIdentifierSource))

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIdentifierSource))

	empty := writeFile(t, "empty.csv", "")
	_, err = Load(empty, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIdentifierSource))
}
