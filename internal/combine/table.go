// Package combine merges per-language-pair metric tables into one
// spreadsheet-friendly CSV grouped by metric.
package combine

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrNoTables       = errors.New("no input tables")
	ErrNoSystemColumn = errors.New("missing system column")
)

// Table is one metrics CSV: a row per system, a column per metric.
type Table struct {
	Pair    string
	Metrics []string
	Systems []string
	values  map[string]map[string]float64
}

// Value returns the parsed cell; missing cells and NaN both report false.
func (t *Table) Value(system, metric string) (float64, bool) {
	v, ok := t.values[system][metric]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// LangPairFromFilename derives the pair label from a file name such as
// scores_en_de.csv: everything up to the first "." of the base name, minus
// the prefix up to the first "_", with remaining "_" turned into "-".
func LangPairFromFilename(path string) (string, error) {
	base := filepath.Base(path)
	stem, _, _ := strings.Cut(base, ".")
	_, pair, ok := strings.Cut(stem, "_")
	if !ok || pair == "" {
		return "", fmt.Errorf("no language pair in file name %q", base)
	}
	return strings.ReplaceAll(pair, "_", "-"), nil
}

func ParseTable(path string) (*Table, error) {
	pair, err := LangPairFromFilename(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadTable(f, pair)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadTable parses CSV with a header row. The "system" column names the row,
// every other column is a metric. Empty or unparseable cells become NaN.
func ReadTable(r io.Reader, pair string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoSystemColumn
	}
	if err != nil {
		return nil, err
	}

	systemCol := -1
	var metrics []string
	var metricCols []int
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "system" && systemCol < 0 {
			systemCol = i
			continue
		}
		metrics = append(metrics, h)
		metricCols = append(metricCols, i)
	}
	if systemCol < 0 {
		return nil, ErrNoSystemColumn
	}

	t := &Table{
		Pair:    pair,
		Metrics: metrics,
		values:  make(map[string]map[string]float64),
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if systemCol >= len(row) {
			continue
		}

		system := strings.TrimSpace(row[systemCol])
		if _, dup := t.values[system]; dup {
			return nil, fmt.Errorf("system %q listed twice for %s", system, pair)
		}

		vals := make(map[string]float64, len(metrics))
		for j, col := range metricCols {
			cell := ""
			if col < len(row) {
				cell = row[col]
			}
			vals[metrics[j]] = safeFloat(cell)
		}
		t.values[system] = vals
		t.Systems = append(t.Systems, system)
	}

	return t, nil
}

func safeFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
