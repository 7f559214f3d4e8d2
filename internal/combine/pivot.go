package combine

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"strconv"
)

// Pivot is the combined view: pair -> system -> metric -> value, with the
// final row and column order fixed.
type Pivot struct {
	Systems []string
	Metrics []string
	Pairs   []string
	data    map[string]map[string]map[string]float64
}

// Combine merges tables. Rows are the curated systems found in any input,
// then the remaining systems sorted. Metrics and pairs follow the curated
// order for the ones present, then first-seen order.
func Combine(tables []*Table, order Order) (*Pivot, error) {
	if len(tables) == 0 {
		return nil, ErrNoTables
	}

	p := &Pivot{data: make(map[string]map[string]map[string]float64)}

	var seenPairs, seenMetrics []string
	present := make(map[string]bool)

	for _, t := range tables {
		bySystem, ok := p.data[t.Pair]
		if !ok {
			bySystem = make(map[string]map[string]float64)
			p.data[t.Pair] = bySystem
			seenPairs = append(seenPairs, t.Pair)
		}

		for _, m := range t.Metrics {
			if !slices.Contains(seenMetrics, m) {
				seenMetrics = append(seenMetrics, m)
			}
		}

		for _, s := range t.Systems {
			if _, dup := bySystem[s]; dup {
				return nil, fmt.Errorf("system %q listed twice for %s", s, t.Pair)
			}
			bySystem[s] = t.values[s]
			present[s] = true
		}
	}

	p.Pairs = arrange(order.LanguagePairs, seenPairs)
	p.Metrics = arrange(order.Metrics, seenMetrics)

	var unknown []string
	for s := range present {
		if !slices.Contains(order.Systems, s) {
			unknown = append(unknown, s)
		}
	}
	sort.Strings(unknown)
	for _, s := range order.Systems {
		if present[s] && !slices.Contains(p.Systems, s) {
			p.Systems = append(p.Systems, s)
		}
	}
	p.Systems = append(p.Systems, unknown...)

	return p, nil
}

// arrange returns the curated entries found in seen, then the rest of seen
// in its own order.
func arrange(curated, seen []string) []string {
	out := make([]string, 0, len(seen))
	for _, c := range curated {
		if slices.Contains(seen, c) && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	for _, s := range seen {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Value reports false for combinations absent from the inputs and for NaN.
func (p *Pivot) Value(pair, system, metric string) (float64, bool) {
	v, ok := p.data[pair][system][metric]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Records renders the two header rows followed by one row per system.
func (p *Pivot) Records() [][]string {
	width := 1 + len(p.Metrics)*len(p.Pairs)

	metricRow := make([]string, 0, width)
	pairRow := make([]string, 0, width)
	metricRow = append(metricRow, "system")
	pairRow = append(pairRow, "")
	for _, m := range p.Metrics {
		for i, pair := range p.Pairs {
			if i == 0 {
				metricRow = append(metricRow, m)
			} else {
				metricRow = append(metricRow, "")
			}
			pairRow = append(pairRow, pair)
		}
	}

	records := [][]string{metricRow, pairRow}
	for _, s := range p.Systems {
		row := make([]string, 0, width)
		row = append(row, s)
		for _, m := range p.Metrics {
			for _, pair := range p.Pairs {
				row = append(row, p.cell(pair, s, m))
			}
		}
		records = append(records, row)
	}
	return records
}

func (p *Pivot) cell(pair, system, metric string) string {
	v, ok := p.Value(pair, system, metric)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (p *Pivot) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(p.Records()); err != nil {
		return fmt.Errorf("write combined csv: %w", err)
	}
	return nil
}
