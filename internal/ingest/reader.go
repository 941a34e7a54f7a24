// Package ingest turns uploaded extracts (CSV or XLSX) into domain rows.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a decoded sheet: a header row plus data rows. Lines holds the
// 1-based physical line of each row so messages can point at the file.
type Table struct {
	Header    []string
	Rows      [][]string
	Lines     []int
	Delimiter rune
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// ReadCSV decodes a comma or semicolon separated file. Input that is not
// valid UTF-8 is read as Windows-1252, which is what spreadsheet exports in
// Chile usually produce.
func ReadCSV(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), raw)
		if err != nil {
			return nil, fmt.Errorf("decode windows-1252: %w", err)
		}
		raw = decoded
	}

	text := string(raw)
	delim := detectDelimiter(text)

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	t := &Table{Delimiter: delim}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, domain.NewPassError(domain.ErrorTypeInvalidStruct,
					fmt.Sprintf("No se pudo leer la línea %d del CSV: %v", pe.Line, pe.Err)).
					WithDetail("line", pe.Line)
			}
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if blank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)
		t.add(trimAll(record), line)
	}

	if t.Header == nil || len(t.Rows) == 0 {
		return nil, ErrEmptyFile()
	}
	return t, nil
}

func (t *Table) add(record []string, line int) {
	if t.Header == nil {
		t.Header = record
		return
	}
	t.Rows = append(t.Rows, record)
	t.Lines = append(t.Lines, line)
}

// ErrEmptyFile is returned when a file has no data besides its headers.
func ErrEmptyFile() *domain.PassError {
	return domain.NewPassError(domain.ErrorTypeEmptyFile,
		"El archivo CSV está vacío o solo tiene encabezados.\n\nAsegúrate de que el archivo tenga datos además de la fila de encabezados.")
}

// CheckExtension rejects uploads whose name does not end in one of exts.
func CheckExtension(filename string, exts ...string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, want := range exts {
		if ext == want {
			return nil
		}
	}
	got := "sin extensión"
	if ext != "" {
		got = strings.ToUpper(strings.TrimPrefix(ext, "."))
	}
	expected := strings.ToUpper(strings.Join(exts, " o "))
	return domain.NewPassError(domain.ErrorTypeInvalidFileType,
		fmt.Sprintf("Archivo no válido: %q\n\nSe esperaba un archivo %s pero se recibió un archivo %s.", filename, expected, got)).
		WithDetail("fileName", filename)
}

func detectDelimiter(text string) rune {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Contains(line, ";") {
			return ';'
		}
		return ','
	}
	return ','
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func trimAll(record []string) []string {
	out := make([]string, len(record))
	for i, f := range record {
		out[i] = strings.TrimSpace(f)
	}
	return out
}
