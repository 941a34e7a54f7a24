package ingest

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"49,7", 49.7, true},
		{"49.7", 49.7, true},
		{"1.234,5", 1234.5, true},
		{"1,234.5", 1234.5, true},
		{"1.234.567", 1234567, true},
		{"$ 9990", 9990, true},
		{"-3", -3, true},
		{"", 0, false},
		{"n/a", 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseNumber(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := map[string]float64{
		"1.234,5": 1234.5,
		"9.990":   9990,
		"12":      12,
		"":        0,
		"abc":     0,
	}
	for in, want := range tests {
		if got := ParseAmount(in); got != want {
			t.Errorf("ParseAmount(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Pronóstico":      "pronostico",
		" Seller_SKU ":    "sellersku",
		"Total Vendido":   "totalvendido",
		"ACCIÓN":          "accion",
		"precio_promedio": "preciopromedio",
	}
	for in, want := range tests {
		if got := NormalizeHeader(in); got != want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReadCSVDetectsDelimiterAndBOM(t *testing.T) {
	input := "\xEF\xBB\xBFsemana;cliente;seller_sku\n\n202601;\"Beiersdorf; S.A.\";SKU1\r\n"
	table, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if table.Delimiter != ';' {
		t.Fatalf("delimiter = %q", table.Delimiter)
	}
	if table.Header[0] != "semana" {
		t.Fatalf("BOM not stripped: %q", table.Header[0])
	}
	if table.Len() != 1 || table.Rows[0][1] != "Beiersdorf; S.A." {
		t.Fatalf("rows = %v", table.Rows)
	}
	if table.Lines[0] != 3 {
		t.Fatalf("line = %d, want 3", table.Lines[0])
	}
}

func TestReadCSVDecodesWindows1252(t *testing.T) {
	input := []byte("cuenta,sku,pron\xf3stico\nNivea,SKU1,4\n")
	table, err := ReadCSV(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if table.Header[2] != "pronóstico" {
		t.Fatalf("header = %q", table.Header[2])
	}
}

func TestReadCSVEmptyFile(t *testing.T) {
	for _, input := range []string{"", "\n\n", "cliente,sku,vendido\n"} {
		_, err := ReadCSV(strings.NewReader(input))
		pe, ok := domain.AsPassError(err)
		if !ok || pe.Type != domain.ErrorTypeEmptyFile {
			t.Fatalf("input %q: expected empty_file, got %v", input, err)
		}
	}
}

func TestCheckExtension(t *testing.T) {
	if err := CheckExtension("Ventas.CSV", ".csv"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	err := CheckExtension("ventas.xlsx", ".csv")
	pe, ok := domain.AsPassError(err)
	if !ok || pe.Type != domain.ErrorTypeInvalidFileType {
		t.Fatalf("expected invalid_file_type, got %v", err)
	}
	if !strings.Contains(pe.Message, "XLSX") {
		t.Fatalf("message = %q", pe.Message)
	}
}

func TestParseSales(t *testing.T) {
	input := "semana;cliente;seller_sku;total_vendido;precio_promedio;disponibilidad\n" +
		"202552;Beiersdorf;SKU1;49,7;9.990,5;85\n" +
		"xx;Nivea;SKU2;3;;\n" +
		";Nivea;;7;100;1\n"
	rows, err := ParseSales(strings.NewReader(input), "ventas.csv", 202601)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []domain.SalesRow{
		{Week: 202552, Account: "Beiersdorf", SKU: "SKU1", Units: 49.7, AvgPrice: 9990.5, Availability: domain.Ptr(85.0)},
		{Week: 202601, Account: "Nivea", SKU: "SKU2", Units: 3},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestParseSalesMissingColumns(t *testing.T) {
	input := "semana,producto,unidades\n202601,SKU1,3\n"
	_, err := ParseSales(strings.NewReader(input), "ventas.csv", 202601)
	pe, ok := domain.AsPassError(err)
	if !ok || pe.Type != domain.ErrorTypeInvalidStruct {
		t.Fatalf("expected invalid_structure, got %v", err)
	}
	missing, _ := pe.Details["missing"].([]string)
	if !reflect.DeepEqual(missing, []string{"cliente/cuenta", "sku/seller_sku", "total_vendido/venta"}) {
		t.Fatalf("missing = %v", pe.Details["missing"])
	}
	if !strings.Contains(pe.Message, "ventas.csv") || !strings.Contains(pe.Message, "202549, Beiersdorf") {
		t.Fatalf("message = %q", pe.Message)
	}
}

func TestSchemaClaimsEachHeaderOnce(t *testing.T) {
	cols, err := SalesSchema.Match("", []string{"Cliente", "SKU", "Venta total", "Precio venta"})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if cols[colUnits] != 2 || cols[colAvgPrice] != 3 {
		t.Fatalf("cols = %v", cols)
	}
}

func TestParsePlan(t *testing.T) {
	input := "Semana,Nodo,Cuenta,Sku_Seller,Pronóstico,Plan_demanda,PVP_PD,Acción,Observaciones\n" +
		"202602,,Beiersdorf,SKU1,100,\"95,5\",9990,Mantener,\n" +
		"bad,Falabella,Nivea,SKU2,,,,,Revisar\n" +
		"202602,,,SKU3,1,1,1,,\n"
	rows, err := ParsePlan(strings.NewReader(input), "plan.csv", 202601, "Mercadolibre_Chile")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	first := rows[0]
	if first.Week != 202602 || first.Node != "Mercadolibre_Chile" || first.Line != 2 {
		t.Fatalf("first = %+v", first)
	}
	if *first.Forecast != 100 || *first.PlannedDemand != 95.5 || *first.ListPrice != 9990 {
		t.Fatalf("numbers = %v %v %v", *first.Forecast, *first.PlannedDemand, *first.ListPrice)
	}
	if domain.Str(first.Action) != "Mantener" || first.Notes != nil {
		t.Fatalf("action = %v, notes = %v", first.Action, first.Notes)
	}
	second := rows[1]
	if second.Week != 202601 || second.Node != "Falabella" || *second.PlannedDemand != 0 || domain.Str(second.Notes) != "Revisar" {
		t.Fatalf("second = %+v", second)
	}
}

func TestParseScenarios(t *testing.T) {
	input := "nodo;cuenta;sku_seller;escenario;cantidad_venta;precio_venta\n" +
		"Mercadolibre_Chile;Beiersdorf;SKU1;Descuento_5;1.200;9.490,5\n" +
		"Mercadolibre_Chile;Beiersdorf;;Venta;1;1\n" +
		"Mercadolibre_Chile;Beiersdorf;SKU1;Promo;1;1\n" +
		"Mercadolibre_Chile;Beiersdorf;SKU1;Venta;-1;1\n"
	file, err := ParseScenarios(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := domain.ScenarioEntry{Node: "Mercadolibre_Chile", Account: "Beiersdorf", SKU: "SKU1",
		Scenario: domain.ScenarioDiscount5, Quantity: 1200, Price: 9490.5}
	if len(file.Entries) != 1 || file.Entries[0] != want {
		t.Fatalf("entries = %+v", file.Entries)
	}
	if len(file.LineErrors) != 3 {
		t.Fatalf("line errors = %v", file.LineErrors)
	}
	if !strings.HasPrefix(file.LineErrors[0], "Línea 3:") || !strings.Contains(file.LineErrors[1], `"Promo"`) {
		t.Fatalf("line errors = %v", file.LineErrors)
	}
}

func TestParseScenariosRejects(t *testing.T) {
	_, err := ParseScenarios(strings.NewReader("Nodo,Cuenta,Sku\nA,B,C\n"))
	if pe, ok := domain.AsPassError(err); !ok || pe.Type != domain.ErrorTypeInvalidStruct {
		t.Fatalf("expected invalid_structure, got %v", err)
	}

	input := "Nodo,Cuenta,Sku_Seller,Escenario,Cantidad_Venta,Precio_Venta\nA,B,C,Otro,1,1\n"
	_, err = ParseScenarios(strings.NewReader(input))
	if pe, ok := domain.AsPassError(err); !ok || pe.Type != domain.ErrorTypeNoValidRecords {
		t.Fatalf("expected no_valid_records, got %v", err)
	}
}

func TestStockFromXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"SKU", "Stock", "Cliente", "Fecha", "País"},
		{"SKU1", 3, "Beiersdorf", "29-12-2025", "Chile"},
		{},
		{"SKU2", "4,5", "Nivea", "29-12-2025", "Peru"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	table, err := ReadTable(buf, "stock.xlsx")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	snapshot, err := StockFromTable(table, "stock.xlsx", "", "")
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	want := []domain.StockSnapshot{
		{SKU: "SKU1", Stock: 3, Client: "Beiersdorf", SnapshotDate: "29-12-2025", Country: "Chile"},
		{SKU: "SKU2", Stock: 4.5, Client: "Nivea", SnapshotDate: "29-12-2025", Country: "Peru"},
	}
	if !reflect.DeepEqual(snapshot, want) {
		t.Fatalf("snapshot = %+v", snapshot)
	}

	overridden, err := StockFromTable(table, "stock.xlsx", "2025-12-29", "Chile")
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if overridden[1].SnapshotDate != "2025-12-29" || overridden[1].Country != "Chile" {
		t.Fatalf("override = %+v", overridden[1])
	}
}

func TestReadTableRejectsUnknownExtension(t *testing.T) {
	_, err := ReadTable(strings.NewReader("x"), "stock.pdf")
	if pe, ok := domain.AsPassError(err); !ok || pe.Type != domain.ErrorTypeInvalidFileType {
		t.Fatalf("expected invalid_file_type, got %v", err)
	}
}
