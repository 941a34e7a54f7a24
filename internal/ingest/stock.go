package ingest

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

// StockSchema describes a stock snapshot file.
var StockSchema = Schema{
	Title: " para stock",
	Columns: []Column{
		{Name: colSKU, Label: "sku", Patterns: []string{"sku"}, Required: true},
		{Name: colStock, Label: "stock", Patterns: []string{"stock", "existencia"}, Required: true},
		{Name: colAccount, Label: "cliente", Patterns: []string{"cliente", "cuenta"}},
		{Name: colDate, Label: "fecha", Patterns: []string{"fecha", "date"}},
		{Name: colCountry, Label: "pais", Patterns: []string{"pais", "country"}},
	},
	Format:  "sku, stock, cliente, fecha, pais",
	Example: "SKU123, 40, Beiersdorf, 29-12-2025, Chile",
}

// ReadTable decodes a CSV or XLSX file depending on its extension.
func ReadTable(r io.Reader, filename string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return ReadXLSX(r)
	case ".csv":
		return ReadCSV(r)
	default:
		return nil, CheckExtension(filename, ".csv", ".xlsx")
	}
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile()
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows from sheet %s: %w", sheets[0], err)
	}
	defer rows.Close()

	t := &Table{}
	line := 0
	for rows.Next() {
		line++
		record, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read xlsx row %d: %w", line, err)
		}
		if blank(record) {
			continue
		}
		t.add(trimAll(record), line)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("iterate xlsx rows: %w", err)
	}

	if t.Header == nil || len(t.Rows) == 0 {
		return nil, ErrEmptyFile()
	}
	return t, nil
}

// StockFromTable maps a snapshot table. Non-empty date and country override
// the values carried by each row.
func StockFromTable(t *Table, filename, date, country string) ([]domain.StockSnapshot, error) {
	cols, err := StockSchema.Match(filename, t.Header)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.StockSnapshot, 0, t.Len())
	for _, rec := range t.Rows {
		sku := cols.Get(rec, colSKU)
		if sku == "" {
			continue
		}
		row := domain.StockSnapshot{
			SKU:          sku,
			Stock:        NumberOr(cols.Get(rec, colStock), 0),
			Client:       cols.Get(rec, colAccount),
			SnapshotDate: date,
			Country:      country,
		}
		if row.SnapshotDate == "" {
			row.SnapshotDate = cols.Get(rec, colDate)
		}
		if c := cols.Get(rec, colCountry); c != "" && country == "" {
			row.Country = c
		}
		if row.SnapshotDate == "" {
			return nil, domain.NewPassError(domain.ErrorTypeInvalidRequest,
				fmt.Sprintf("La fila del sku %s no tiene fecha y no se indicó una fecha de carga.", sku))
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, domain.NewPassError(domain.ErrorTypeNoValidRecords, "No se encontraron filas de stock con sku.")
	}
	return rows, nil
}
