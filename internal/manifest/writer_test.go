package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"iter"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

var fieldOrder = []string{
	"dataset_id", "sample_id", "src_audio", "src_ref",
	"tgt_ref", "src_lang", "tgt_lang", "benchmark_metadata",
}

func testRecord(id SampleID, text string) Record {
	var meta Metadata
	meta.Set("context", "short")
	return Record{
		DatasetID:         "covost2",
		SampleID:          id,
		SrcAudio:          StringPtr("/covost2/audio/uk/" + id.String() + ".wav"),
		SrcRef:            StringPtr(text),
		SrcLang:           "uk",
		TgtLang:           StringPtr("en"),
		BenchmarkMetadata: meta,
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			lines = append(lines, scanner.Text())
		}
	}
	return lines
}

func topLevelKeys(t *testing.T, line string) []string {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(line))
	if _, err := dec.Token(); err != nil {
		t.Fatal(err)
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			t.Fatal(err)
		}
	}
	return keys
}

func collect(records ...Record) iter.Seq[Record] {
	return slices.Values(records)
}

func TestWriteRecordsFieldOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uk-en.jsonl")

	rec := testRecord(StringID("a1"), "Привіт <світ> & ok")
	rec.TgtRef = nil
	rec.BenchmarkMetadata.Set("stutter_pos", []int{2, 5})
	rec.BenchmarkMetadata.Set("has_stutter", "True")

	if _, err := WriteRecords(collect(rec, testRecord(IntID(7), "b")), path, Overwrite); err != nil {
		t.Fatalf("WriteRecords: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for _, line := range lines {
		if got := topLevelKeys(t, line); !slices.Equal(got, fieldOrder) {
			t.Errorf("keys = %v, want %v", got, fieldOrder)
		}
	}

	if !strings.Contains(lines[0], "Привіт <світ> & ok") {
		t.Errorf("text was escaped: %s", lines[0])
	}
	if !strings.Contains(lines[0], `"tgt_ref":null`) {
		t.Errorf("missing null tgt_ref: %s", lines[0])
	}
	if !strings.Contains(lines[0], `"benchmark_metadata":{"context":"short","stutter_pos":[2,5],"has_stutter":"True"}`) {
		t.Errorf("metadata order not preserved: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"sample_id":7,`) {
		t.Errorf("integer id not kept: %s", lines[1])
	}
}

func TestAppendDedupeIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "uk-en.jsonl")
	batch := collect(
		testRecord(StringID("1"), "one"),
		testRecord(StringID("2"), "two"),
		testRecord(StringID("3"), "three"),
	)

	first, err := WriteRecords(batch, path, AppendDedupe)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := WriteRecords(batch, path, AppendDedupe)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.Written != 3 || second.Written != 0 || second.Skipped != 3 {
		t.Errorf("stats first=%+v second=%+v", first, second)
	}
	if n := len(readLines(t, path)); n != 3 {
		t.Errorf("got %d lines, want 3", n)
	}
}

func TestAppendDedupeDisjointUnion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uk-en.jsonl")

	a := collect(testRecord(StringID("1"), "one"), testRecord(StringID("2"), "two"))
	b := collect(testRecord(StringID("3"), "three"), testRecord(IntID(4), "four"), testRecord(StringID("5"), "five"))

	if _, err := WriteRecords(a, path, AppendDedupe); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteRecords(b, path, AppendDedupe); err != nil {
		t.Fatal(err)
	}
	if n := len(readLines(t, path)); n != 5 {
		t.Errorf("got %d lines, want 5", n)
	}
}

func TestAppendDedupeResumesAfterTruncatedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uk-en.jsonl")

	first, _ := Marshal(testRecord(StringID("1"), "one"))
	partial := `{"dataset_id":"covost2","sample_id":"2","src_au`
	content := string(first) + "\n" + "not json at all\n" + partial
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	ids, err := LoadIDs(path)
	if err != nil {
		t.Fatalf("LoadIDs: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("LoadIDs found %d ids, want 1", len(ids))
	}

	stats, err := WriteRecords(collect(
		testRecord(StringID("1"), "one"),
		testRecord(StringID("2"), "two"),
	), path, AppendDedupe)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Written != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}

	ids, _ = LoadIDs(path)
	if _, ok := ids[StringID("2").Key()]; !ok {
		t.Error("record 2 was not appended on its own line")
	}
}

func TestOverwriteTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "en-en.jsonl")
	if _, err := WriteRecords(collect(testRecord(StringID("1"), "x"), testRecord(StringID("2"), "y")), path, Overwrite); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteRecords(collect(testRecord(StringID("3"), "z")), path, Overwrite); err != nil {
		t.Fatal(err)
	}
	if n := len(readLines(t, path)); n != 1 {
		t.Errorf("got %d lines, want 1", n)
	}
}

func TestStringAndIntIDsAreDistinct(t *testing.T) {
	path := filepath.Join(t.TempDir(), "en-de.jsonl")
	stats, err := WriteRecords(collect(testRecord(StringID("7"), "s"), testRecord(IntID(7), "n")), path, AppendDedupe)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Written != 2 {
		t.Errorf("written = %d, want 2", stats.Written)
	}
}

func TestUnserializableMetadataIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "en-de.jsonl")

	bad := testRecord(StringID("nan"), "x")
	bad.BenchmarkMetadata.Set("score", math.NaN())

	stats, err := WriteRecords(collect(testRecord(StringID("ok"), "y"), bad, testRecord(StringID("after"), "z")), path, Overwrite)
	if err == nil {
		t.Fatal("expected serialization error")
	}
	if stats.Written != 1 {
		t.Errorf("written = %d, want 1", stats.Written)
	}
	if n := len(readLines(t, path)); n != 1 {
		t.Errorf("got %d lines, want 1", n)
	}
}

func TestCreateFailsWhenDirUncreatable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Create(filepath.Join(blocker, "sub", "m.jsonl"), Overwrite); err == nil {
		t.Fatal("expected error creating manifest under a regular file")
	}
}

func TestWriteRejectsInvalidRecord(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "m.jsonl"), Overwrite)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	rec := testRecord(StringID("x"), "y")
	rec.SrcLang = ""
	if _, err := w.Write(rec); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("err = %v, want ErrInvalidRecord", err)
	}
}

func TestWithDataRootRequiresStagedAudio(t *testing.T) {
	root := t.TempDir()
	w, err := Create(filepath.Join(root, "m.jsonl"), Overwrite, WithDataRoot(root))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	rec := testRecord(StringID("a"), "x")
	if _, err := w.Write(rec); !errors.Is(err, ErrAudioMissing) {
		t.Fatalf("err = %v, want ErrAudioMissing", err)
	}

	staged := ResolveAudio(root, *rec.SrcAudio)
	if err := os.MkdirAll(filepath.Dir(staged), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(staged, []byte("RIFF"), 0644); err != nil {
		t.Fatal(err)
	}
	if ok, err := w.Write(rec); err != nil || !ok {
		t.Fatalf("Write after staging = %v, %v", ok, err)
	}

	audioless := testRecord(StringID("b"), "x")
	audioless.SrcAudio = nil
	audioless.SrcRef = nil
	if ok, err := w.Write(audioless); err != nil || !ok {
		t.Errorf("record without audio = %v, %v", ok, err)
	}
}
