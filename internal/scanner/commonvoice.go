package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"speech-manifests/internal/manifest"
	"speech-manifests/internal/utils"
)

var DefaultCommonVoiceSplits = []string{"train", "dev", "test", "invalidated", "other", "validated"}

// CommonVoice draws a seeded random sample from the split TSVs of one
// CommonVoice language directory (<Dir>/<split>.tsv, <Dir>/clips/*.mp3).
// The clips are converted to WAV when staged. Only the source sentence is
// known, so records carry no target reference (CoVoST2).
type CommonVoice struct {
	Dir        string
	Splits     []string
	SampleSize int
	Seed       uint64
	Dataset    string
	SrcLang    string
	TgtLang    string
	Context    string
}

type commonVoiceRow struct {
	uttID    string
	path     string
	sentence string
}

func (c *CommonVoice) DatasetID() string {
	return orDefault(c.Dataset, "covost2")
}

func (c *CommonVoice) Lang() string {
	return orDefault(c.SrcLang, "uk")
}

func (c *CommonVoice) Count() (int, error) {
	rows, err := c.sample()
	return len(rows), err
}

func (c *CommonVoice) Scan(ctx context.Context) (<-chan Sample, <-chan error) {
	return stream(ctx, func(emit func(Sample) bool) error {
		rows, err := c.sample()
		if err != nil {
			return err
		}

		for _, row := range rows {
			clip := filepath.Join(c.Dir, "clips", row.path)
			s := Sample{
				Record:    CommonVoiceRecord(c.DatasetID(), c.Lang(), c.TgtLang, c.Context, row.uttID, row.sentence),
				AudioPath: clip,
				StageName: row.uttID + ".wav",
			}
			if !utils.FileExists(clip) {
				s.Err = fmt.Errorf("audio %s not found", clip)
			}
			if !emit(s) {
				return nil
			}
		}
		return nil
	})
}

// sample loads every split and keeps SampleSize rows drawn with Seed.
// The draw only depends on the seed and the row order of the splits.
func (c *CommonVoice) sample() ([]commonVoiceRow, error) {
	splits := c.Splits
	if len(splits) == 0 {
		splits = DefaultCommonVoiceSplits
	}

	var rows []commonVoiceRow
	seen := make(map[string]bool)
	found := 0
	for _, split := range splits {
		path := filepath.Join(c.Dir, split+".tsv")
		if !utils.FileExists(path) {
			continue
		}
		found++
		splitRows, err := readCommonVoiceTSV(path)
		if err != nil {
			return nil, err
		}
		for _, row := range splitRows {
			if seen[row.uttID] {
				continue
			}
			seen[row.uttID] = true
			rows = append(rows, row)
		}
	}
	if found == 0 {
		return nil, fmt.Errorf("no split TSVs (%s) in %s", strings.Join(splits, ", "), c.Dir)
	}

	n := c.SampleSize
	if n <= 0 {
		n = 2500
	}
	if n > len(rows) {
		n = len(rows)
	}

	rng := rand.New(rand.NewPCG(c.Seed, c.Seed))
	out := make([]commonVoiceRow, 0, n)
	for _, i := range rng.Perm(len(rows))[:n] {
		out = append(out, rows[i])
	}
	return out, nil
}

func readCommonVoiceTSV(path string) ([]commonVoiceRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	header := splitTSV(sc.Text())
	pathCol, sentenceCol := -1, -1
	for i, name := range header {
		switch name {
		case "path":
			pathCol = i
		case "sentence":
			sentenceCol = i
		}
	}
	if pathCol < 0 || sentenceCol < 0 {
		return nil, errors.New(path + ": header lacks path or sentence column")
	}

	var rows []commonVoiceRow
	for sc.Scan() {
		if sc.Text() == "" {
			continue
		}
		fields := splitTSV(sc.Text())
		if len(fields) <= max(pathCol, sentenceCol) {
			continue
		}
		rows = append(rows, commonVoiceRow{
			uttID:    CommonVoiceUttID(fields[pathCol]),
			path:     fields[pathCol],
			sentence: fields[sentenceCol],
		})
	}
	return rows, sc.Err()
}

// splitTSV splits on tabs. Quotes are literal and a backslash escapes the
// next character, the way CommonVoice writes its tables.
func splitTSV(line string) []string {
	var fields []string
	var b strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '\t':
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	return append(fields, b.String())
}

// CommonVoiceUttID reduces "common_voice_uk_20941234.mp3" to "20941234".
func CommonVoiceUttID(clip string) string {
	name := strings.TrimSuffix(clip, ".mp3")
	if i := strings.LastIndex(name, "_"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func CommonVoiceRecord(dataset, srcLang, tgtLang, context, uttID, sentence string) manifest.Record {
	var meta manifest.Metadata
	meta.Set("context", orDefault(context, "short"))

	rec := manifest.Record{
		DatasetID:         dataset,
		SampleID:          manifest.StringID(uttID),
		SrcRef:            manifest.StringPtr(sentence),
		SrcLang:           srcLang,
		BenchmarkMetadata: meta,
	}
	if tgtLang != "" {
		rec.TgtLang = manifest.StringPtr(tgtLang)
	}
	return rec
}
