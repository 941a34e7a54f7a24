package ingest

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

// Column declares one logical column and the header fragments that identify it.
type Column struct {
	Name     string
	Label    string
	Patterns []string
	Required bool
}

// Schema is an ordered list of columns. Earlier columns claim headers first.
type Schema struct {
	Title   string
	Columns []Column
	Format  string
	Example string
}

// ColumnMap resolves column names to header positions.
type ColumnMap map[string]int

// Has reports whether the column was found in the header.
func (m ColumnMap) Has(name string) bool {
	_, ok := m[name]
	return ok
}

// Get returns the trimmed cell for name, or "" when absent.
func (m ColumnMap) Get(row []string, name string) string {
	idx, ok := m[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// NormalizeHeader lowercases h, folds accents and drops underscores and spaces,
// so "Pronóstico", "PRONOSTICO" and "pro_nostico" compare equal.
func NormalizeHeader(h string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), h)
	if err != nil {
		folded = h
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, folded)
}

// Match assigns every declared column to the first unclaimed header that
// contains one of its patterns. Missing required columns yield an
// invalid_structure error listing what was found.
func (s Schema) Match(filename string, header []string) (ColumnMap, error) {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = NormalizeHeader(h)
	}

	claimed := make([]bool, len(header))
	cols := ColumnMap{}
	var missing []string
	for _, col := range s.Columns {
		idx := findHeader(normalized, claimed, col.Patterns)
		if idx < 0 {
			if col.Required {
				missing = append(missing, col.Label)
			}
			continue
		}
		claimed[idx] = true
		cols[col.Name] = idx
	}

	if len(missing) > 0 {
		return nil, s.structureError(filename, header, missing)
	}
	return cols, nil
}

func findHeader(normalized []string, claimed []bool, patterns []string) int {
	for i, h := range normalized {
		if claimed[i] {
			continue
		}
		for _, p := range patterns {
			if strings.Contains(h, NormalizeHeader(p)) {
				return i
			}
		}
	}
	return -1
}

func (s Schema) structureError(filename string, header, missing []string) *domain.PassError {
	var b strings.Builder
	fmt.Fprintf(&b, "Estructura de CSV incorrecta%s\n\n", s.Title)
	if filename != "" {
		fmt.Fprintf(&b, "Archivo: %s\n", filename)
	}
	fmt.Fprintf(&b, "Columnas encontradas: %s\n\n", strings.Join(header, ", "))
	fmt.Fprintf(&b, "Columnas faltantes: %s", strings.Join(missing, ", "))
	if s.Format != "" {
		fmt.Fprintf(&b, "\n\nFormato esperado:\n   %s", s.Format)
	}
	if s.Example != "" {
		fmt.Fprintf(&b, "\n\nEjemplo de primera fila:\n   %s", s.Example)
	}
	return domain.NewPassError(domain.ErrorTypeInvalidStruct, b.String()).
		WithDetail("headers", header).
		WithDetail("missing", missing)
}
