package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync/atomic"

	"speech-manifests/internal/manifest"
	"speech-manifests/internal/metrics"
)

type ScoreOptions struct {
	Manifest string
	// Hypotheses maps a system name to its JSONL file of
	// {"sample_id": ..., "hyp": ...} lines.
	Hypotheses map[string]string
	OutputDir  string
	// UseSource scores against src_ref instead of tgt_ref.
	UseSource bool
}

type hypothesis struct {
	SampleID manifest.SampleID `json:"sample_id"`
	Hyp      string            `json:"hyp"`
}

// Scorer computes corpus WER/CER per system and writes
// scores_<src>_<tgt>.csv, the input format of the combiner.
type Scorer struct {
	opts ScoreOptions
	counters
}

func NewScorer(opts ScoreOptions) *Scorer {
	return &Scorer{opts: opts}
}

func (s *Scorer) Run(ctx context.Context) (string, RunStatus, error) {
	records, err := manifest.ReadFile(s.opts.Manifest)
	if err != nil {
		return "", RunStatus{}, err
	}
	if len(records) == 0 {
		return "", RunStatus{}, fmt.Errorf("%s has no records", s.opts.Manifest)
	}
	s.reset(int64(len(records) * len(s.opts.Hypotheses)))

	systems := make([]string, 0, len(s.opts.Hypotheses))
	for name := range s.opts.Hypotheses {
		systems = append(systems, name)
	}
	sort.Strings(systems)

	scores := make(map[string]*metrics.Corpus, len(systems))
	for _, name := range systems {
		if err := ctx.Err(); err != nil {
			return "", s.Status(), err
		}
		hyps, err := loadHypotheses(s.opts.Hypotheses[name])
		if err != nil {
			return "", s.Status(), fmt.Errorf("system %s: %w", name, err)
		}
		scores[name] = s.score(records, hyps)
	}

	src := records[0].SrcLang
	tgt := src
	if records[0].TgtLang != nil {
		tgt = *records[0].TgtLang
	}
	out := filepath.Join(s.opts.OutputDir, fmt.Sprintf("scores_%s_%s.csv", src, tgt))
	if err := writeScores(out, systems, scores); err != nil {
		return "", s.Status(), err
	}

	log.Printf("✓ scored %d systems on %d samples: %s", len(systems), len(records), out)
	return out, s.Status(), nil
}

func (s *Scorer) score(records []manifest.Record, hyps map[string]string) *metrics.Corpus {
	c := &metrics.Corpus{}
	for _, rec := range records {
		ref := rec.TgtRef
		if s.opts.UseSource || ref == nil {
			ref = rec.SrcRef
		}
		if ref == nil {
			atomic.AddInt64(&s.skipped, 1)
			continue
		}
		// a missing hypothesis counts as all deletions
		c.Add(*ref, hyps[rec.SampleID.Key()])
		atomic.AddInt64(&s.processed, 1)
	}
	return c
}

func loadHypotheses(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hyps := make(map[string]string)
	dec := json.NewDecoder(f)
	for dec.More() {
		var h hypothesis
		if err := dec.Decode(&h); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		hyps[h.SampleID.Key()] = h.Hyp
	}
	return hyps, nil
}

func writeScores(path string, systems []string, scores map[string]*metrics.Corpus) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"system", "WER", "CER"})
	for _, name := range systems {
		c := scores[name]
		w.Write([]string{
			name,
			strconv.FormatFloat(c.WER(), 'f', -1, 64),
			strconv.FormatFloat(c.CER(), 'f', -1, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
