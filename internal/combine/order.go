package combine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Order holds the curated priority lists. Empty lists fall back to
// first-seen order.
type Order struct {
	Systems       []string `yaml:"systems"`
	Metrics       []string `yaml:"metrics"`
	LanguagePairs []string `yaml:"language_pairs"`
}

func LoadOrder(path string) (Order, error) {
	var o Order
	if path == "" {
		return o, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return o, err
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("parse order %s: %w", path, err)
	}
	return o, nil
}

// Files parses every input path and combines them.
func Files(paths []string, order Order) (*Pivot, error) {
	tables := make([]*Table, 0, len(paths))
	for _, path := range paths {
		t, err := ParseTable(path)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return Combine(tables, order)
}
