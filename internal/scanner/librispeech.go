package scanner

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"speech-manifests/internal/manifest"
	"speech-manifests/internal/utils"
)

const stutterTag = "[STUTTER]"

// LibriSpeech scans the LibriSpeech layout: every chapter directory holds a
// <spk>-<chapter>.trans.txt with "ID text" lines next to ID.wav or ID.flac.
// With Stutter set, [STUTTER] tokens (LibriStutter) are removed from the
// text and their word positions recorded.
type LibriSpeech struct {
	Root     string
	Dataset  string
	Language string
	Context  string
	Stutter  bool
}

func (l *LibriSpeech) DatasetID() string {
	return orDefault(l.Dataset, "librispeech")
}

func (l *LibriSpeech) Lang() string {
	return orDefault(l.Language, "en")
}

func (l *LibriSpeech) Count() (int, error) {
	return CountFiles(l.Root, ".wav", ".flac")
}

func (l *LibriSpeech) Scan(ctx context.Context) (<-chan Sample, <-chan error) {
	return stream(ctx, func(emit func(Sample) bool) error {
		return filepath.Walk(l.Root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !strings.HasSuffix(path, ".trans.txt") {
				return nil
			}
			if err := l.parseTransFile(path, emit); err != nil {
				return err
			}
			return ctx.Err()
		})
	})
}

func (l *LibriSpeech) parseTransFile(transPath string, emit func(Sample) bool) error {
	f, err := os.Open(transPath)
	if err != nil {
		return err
	}
	defer f.Close()

	dir := filepath.Dir(transPath)
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// "ID transcription"
		id, text, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}

		s := Sample{Record: LibriSpeechRecord(l.DatasetID(), l.Lang(), l.Context, id, text, l.Stutter)}
		if audio := findAudio(dir, id); audio != "" {
			// FLAC is decoded to WAV at staging
			s.AudioPath = audio
			s.StageName = id + ".wav"
		} else {
			s.Err = fmt.Errorf("no audio for %s in %s", id, dir)
		}

		if !emit(s) {
			return nil
		}
	}

	return scanner.Err()
}

func findAudio(dir, id string) string {
	for _, ext := range []string{".wav", ".flac"} {
		p := filepath.Join(dir, id+ext)
		if utils.FileExists(p) {
			return p
		}
	}
	return ""
}

// LibriSpeechRecord maps one transcript line to a record. Source and target
// reference are the same text.
func LibriSpeechRecord(dataset, lang, context, id, text string, stutter bool) manifest.Record {
	var meta manifest.Metadata

	if stutter {
		var pos []int
		for i, w := range strings.Fields(text) {
			if w == stutterTag {
				pos = append(pos, i)
			}
		}
		text = strings.Join(strings.Fields(strings.ReplaceAll(text, stutterTag, "")), " ")

		hasStutter := "False"
		if len(pos) > 0 {
			hasStutter = "True"
		}
		if pos == nil {
			pos = []int{}
		}
		meta.Set("has_stutter", hasStutter)
		meta.Set("stutter_pos", pos)
	}
	meta.Set("context", orDefault(context, "short"))

	return manifest.Record{
		DatasetID:         dataset,
		SampleID:          manifest.StringID(id),
		SrcRef:            manifest.StringPtr(text),
		TgtRef:            manifest.StringPtr(text),
		SrcLang:           lang,
		TgtLang:           manifest.StringPtr(lang),
		BenchmarkMetadata: meta,
	}
}
