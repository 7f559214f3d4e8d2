package combine

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLangPairFromFilename(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"scores_en_de.csv", "en-de", false},
		{"/a/b/europarl_en_zh.metrics.csv", "en-zh", false},
		{"wmt_cs_uk.csv", "cs-uk", false},
		{"x_pt-br.csv", "pt-br", false},
		{"nopair.csv", "", true},
	}
	for _, tt := range tests {
		got, err := LangPairFromFilename(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("LangPairFromFilename(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestReadTableSafeFloat(t *testing.T) {
	in := "\ufeffsystem, BLEU ,chrF\nwhisper,31.5,\nseamless,n/a,55\nshort,12\n"
	tbl, err := ReadTable(strings.NewReader(in), "en-de")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(tbl.Metrics, []string{"BLEU", "chrF"}) {
		t.Errorf("metrics = %q", tbl.Metrics)
	}
	if !slices.Equal(tbl.Systems, []string{"whisper", "seamless", "short"}) {
		t.Errorf("systems = %q", tbl.Systems)
	}

	if v, ok := tbl.Value("whisper", "BLEU"); !ok || v != 31.5 {
		t.Errorf("whisper BLEU = %v, %v", v, ok)
	}
	for _, c := range [][2]string{{"whisper", "chrF"}, {"seamless", "BLEU"}, {"short", "chrF"}} {
		if _, ok := tbl.Value(c[0], c[1]); ok {
			t.Errorf("%s/%s should be missing", c[0], c[1])
		}
	}
	if !math.IsNaN(tbl.values["seamless"]["BLEU"]) {
		t.Error("unparseable cell should be NaN")
	}
}

func TestReadTableErrors(t *testing.T) {
	if _, err := ReadTable(strings.NewReader("name,BLEU\na,1\n"), "en-de"); !errors.Is(err, ErrNoSystemColumn) {
		t.Errorf("no system column: %v", err)
	}
	if _, err := ReadTable(strings.NewReader("system,BLEU\na,1\na,2\n"), "en-de"); err == nil {
		t.Error("duplicate system should fail")
	}
}

func TestCombineOrderingAndMissingCells(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeCSV(t, dir, "scores_fr_en.csv", "system,chrF,BLEU\nzeta,50,20\nwhisper,60,30\n"),
		writeCSV(t, dir, "scores_en_de.csv", "system,BLEU,chrF\nwhisper,25,55\nalpha,10,\n"),
	}
	order := Order{
		Systems:       []string{"never-seen", "whisper"},
		Metrics:       []string{"BLEU"},
		LanguagePairs: []string{"en-de", "fr-en"},
	}

	p, err := Files(files, order)
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(p.Systems, []string{"whisper", "alpha", "zeta"}) {
		t.Errorf("systems = %v", p.Systems)
	}
	if !slices.Equal(p.Metrics, []string{"BLEU", "chrF"}) {
		t.Errorf("metrics = %v", p.Metrics)
	}
	if !slices.Equal(p.Pairs, []string{"en-de", "fr-en"}) {
		t.Errorf("pairs = %v", p.Pairs)
	}

	// zeta only exists for fr-en: filled there, empty for en-de, per metric
	for _, m := range p.Metrics {
		if _, ok := p.Value("fr-en", "zeta", m); !ok {
			t.Errorf("zeta %s fr-en should be present", m)
		}
		if _, ok := p.Value("en-de", "zeta", m); ok {
			t.Errorf("zeta %s en-de should be missing", m)
		}
	}

	var buf bytes.Buffer
	if err := p.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"system,BLEU,,chrF,",
		",en-de,fr-en,en-de,fr-en",
		"whisper,25,30,55,60",
		"alpha,10,,,",
		"zeta,,20,,50",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("csv =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestCombineFirstSeenWithoutOrder(t *testing.T) {
	a, _ := ReadTable(strings.NewReader("system,m2,m1\ns,0.25,1e-3\n"), "b-a")
	b, _ := ReadTable(strings.NewReader("system,m3\ns,2\n"), "a-b")

	p, err := Combine([]*Table{a, b}, Order{})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(p.Pairs, []string{"b-a", "a-b"}) || !slices.Equal(p.Metrics, []string{"m2", "m1", "m3"}) {
		t.Errorf("pairs=%v metrics=%v", p.Pairs, p.Metrics)
	}
	rows := p.Records()
	if got := rows[2]; !slices.Equal(got, []string{"s", "0.25", "", "0.001", "", "", "2"}) {
		t.Errorf("row = %q", got)
	}
}

func TestCombineErrors(t *testing.T) {
	if _, err := Combine(nil, Order{}); !errors.Is(err, ErrNoTables) {
		t.Errorf("err = %v, want ErrNoTables", err)
	}

	a, _ := ReadTable(strings.NewReader("system,BLEU\nwhisper,1\n"), "en-de")
	b, _ := ReadTable(strings.NewReader("system,BLEU\nwhisper,2\n"), "en-de")
	if _, err := Combine([]*Table{a, b}, Order{}); err == nil {
		t.Error("same system twice for one pair should fail")
	}
}

func TestLoadOrder(t *testing.T) {
	dir := t.TempDir()
	p := writeCSV(t, dir, "order.yaml", "systems: [whisper, canary-v2]\nmetrics:\n  - BLEU\nlanguage_pairs: [en-de]\n")

	o, err := LoadOrder(p)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(o.Systems, []string{"whisper", "canary-v2"}) || !slices.Equal(o.Metrics, []string{"BLEU"}) ||
		!slices.Equal(o.LanguagePairs, []string{"en-de"}) {
		t.Errorf("order = %+v", o)
	}

	if o, err := LoadOrder(""); err != nil || len(o.Systems) != 0 {
		t.Errorf("empty path: %+v, %v", o, err)
	}

	bad := writeCSV(t, dir, "bad.yaml", "systems: {oops")
	if _, err := LoadOrder(bad); err == nil {
		t.Error("expected parse error")
	}
}
