package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"os"
)

const maxLineSize = 64 << 20

// LineError marks a manifest line that is not a valid record.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// LoadIDs collects the sample ids already present in path. A missing file
// yields an empty set and malformed lines are skipped.
func LoadIDs(path string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return ids, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := newLineScanner(f)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var head struct {
			SampleID json.RawMessage `json:"sample_id"`
		}
		if err := json.Unmarshal(line, &head); err != nil || head.SampleID == nil {
			continue
		}
		var id SampleID
		if err := id.UnmarshalJSON(head.SampleID); err != nil {
			continue
		}
		ids[id.Key()] = struct{}{}
	}
	return ids, scanner.Err()
}

// Records iterates the records in r. A malformed line is yielded as a
// *LineError and iteration continues; a read error ends iteration.
func Records(r io.Reader) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		scanner := newLineScanner(r)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var rec Record
			if err := json.Unmarshal(line, &rec); err != nil {
				if !yield(Record{}, &LineError{Line: lineNo, Err: err}) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Record{}, err)
		}
	}
}

// ReadFile collects the valid records of a manifest. Malformed lines are
// logged and skipped; a read error fails the whole file.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Record
	for rec, err := range Records(f) {
		var lineErr *LineError
		if errors.As(err, &lineErr) {
			log.Printf("⚠ %s: skipping %v", path, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), maxLineSize)
	return scanner
}
