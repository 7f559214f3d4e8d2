package manifest

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
)

var ErrAudioMissing = errors.New("src_audio not found under data root")

type Mode int

const (
	// Overwrite truncates the destination.
	Overwrite Mode = iota
	// AppendDedupe keeps the destination and skips ids already written.
	AppendDedupe
)

func (m Mode) String() string {
	if m == AppendDedupe {
		return "append-dedupe"
	}
	return "overwrite"
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "overwrite", "":
		return Overwrite, nil
	case "append-dedupe", "append":
		return AppendDedupe, nil
	}
	return Overwrite, fmt.Errorf("unknown manifest mode %q", s)
}

type Stats struct {
	Written int `json:"written"`
	Skipped int `json:"skipped"`
}

type Option func(*Writer)

// WithDataRoot makes the writer refuse records whose src_audio is not
// staged under root yet.
func WithDataRoot(root string) Option {
	return func(w *Writer) {
		w.dataRoot = root
	}
}

// Writer emits one JSON line per record and syncs after each line, so an
// interrupted run leaves a valid prefix. A Writer is not safe for concurrent
// use, and two processes must not write the same destination.
type Writer struct {
	path     string
	f        *os.File
	seen     map[string]struct{}
	dataRoot string
	stats    Stats
}

func Create(path string, mode Mode, opts ...Option) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create manifest dir: %w", err)
		}
	}

	w := &Writer{
		path: path,
		seen: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	flag := os.O_CREATE | os.O_WRONLY
	switch mode {
	case AppendDedupe:
		ids, err := LoadIDs(path)
		if err != nil {
			return nil, err
		}
		w.seen = ids
		flag |= os.O_APPEND
	default:
		flag |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	w.f = f

	if mode == AppendDedupe {
		if err := w.terminateLastLine(); err != nil {
			f.Close()
			return nil, err
		}
	}

	return w, nil
}

// terminateLastLine adds a newline when the existing file ends mid-line, so
// the next record starts on its own line.
func (w *Writer) terminateLastLine() error {
	fi, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		return nil
	}

	r, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer r.Close()

	last := make([]byte, 1)
	if _, err := r.ReadAt(last, fi.Size()-1); err != nil && err != io.EOF {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = w.f.Write([]byte{'\n'})
	return err
}

func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) Stats() Stats {
	return w.stats
}

// Seen reports whether id is already in the destination.
func (w *Writer) Seen(id SampleID) bool {
	_, ok := w.seen[id.Key()]
	return ok
}

// Write appends rec unless its sample_id was already written. It reports
// whether a line was written.
func (w *Writer) Write(rec Record) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}

	key := rec.SampleID.Key()
	if _, ok := w.seen[key]; ok {
		w.stats.Skipped++
		return false, nil
	}

	if w.dataRoot != "" && rec.SrcAudio != nil {
		path := ResolveAudio(w.dataRoot, *rec.SrcAudio)
		if _, err := os.Stat(path); err != nil {
			return false, fmt.Errorf("%w: sample %s: %s", ErrAudioMissing, rec.SampleID, path)
		}
	}

	line, err := Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("serialize sample %s: %w", rec.SampleID, err)
	}
	line = append(line, '\n')

	if _, err := w.f.Write(line); err != nil {
		return false, fmt.Errorf("write sample %s: %w", rec.SampleID, err)
	}
	if err := w.f.Sync(); err != nil {
		return false, fmt.Errorf("sync manifest: %w", err)
	}

	w.seen[key] = struct{}{}
	w.stats.Written++
	return true, nil
}

// WriteAll drains records into the manifest, stopping at the first record
// that cannot be written.
func (w *Writer) WriteAll(records iter.Seq[Record]) (Stats, error) {
	for rec := range records {
		if _, err := w.Write(rec); err != nil {
			return w.stats, err
		}
	}
	return w.stats, nil
}

func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// WriteRecords writes records to destination in the given mode.
func WriteRecords(records iter.Seq[Record], destination string, mode Mode, opts ...Option) (Stats, error) {
	w, err := Create(destination, mode, opts...)
	if err != nil {
		return Stats{}, err
	}
	stats, err := w.WriteAll(records)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return stats, err
}
