// Package scanner turns dataset layouts on disk into manifest records.
// Each dataset has a pure row mapping and a Source that walks its files.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"speech-manifests/internal/manifest"
)

// Sample is a record produced from one source row plus the audio file it
// refers to. Record.SrcAudio is left for staging to fill in.
type Sample struct {
	Record    manifest.Record
	AudioPath string // empty when the row has no audio
	StageName string
	Err       error // row-level problem, the sample is skipped
}

type Source interface {
	DatasetID() string
	Lang() string
	// Count estimates the number of samples for progress reporting.
	Count() (int, error)
	Scan(ctx context.Context) (<-chan Sample, <-chan error)
}

// stream runs walk in a goroutine and forwards what it emits. emit returns
// false once ctx is cancelled.
func stream(ctx context.Context, walk func(emit func(Sample) bool) error) (<-chan Sample, <-chan error) {
	samples := make(chan Sample, 1000)
	errs := make(chan error, 1)

	go func() {
		defer close(samples)
		defer close(errs)

		emit := func(s Sample) bool {
			select {
			case samples <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if err := walk(emit); err != nil {
			errs <- err
			return
		}
		if err := ctx.Err(); err != nil {
			errs <- err
		}
	}()

	return samples, errs
}

// Collect drains a source. Used by tests and small datasets.
func Collect(ctx context.Context, src Source) ([]Sample, error) {
	samples, errs := src.Scan(ctx)
	var out []Sample
	for s := range samples {
		out = append(out, s)
	}
	return out, <-errs
}

// CountFiles counts files under rootDir with one of the given extensions.
func CountFiles(rootDir string, exts ...string) (int, error) {
	count := 0
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && hasExt(path, exts) {
			count++
		}
		return nil
	})
	return count, err
}

func hasExt(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
