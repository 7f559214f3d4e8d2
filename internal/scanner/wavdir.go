package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"speech-manifests/internal/manifest"
)

// context keywords, checked in this order
var contextKeywords = []struct {
	context  string
	keywords []string
}{
	{"reading", []string{"reading", "read", "passage"}},
	{"monolog", []string{"monolog", "mono"}},
	{"conversation", []string{"conversation", "dialog", "dialogue", "conv"}},
}

var participantReg = regexp.MustCompile(`(?i)(?:spk|speaker|child|kid|p|s)\s*[-_]*\s*(\d{1,3})`)

// WavDir stages every *.wav below Root under sequential zero-padded ids,
// in sorted path order so ids are stable between runs. Recordings carry no
// transcripts (UClass2).
type WavDir struct {
	Root     string
	Dataset  string
	SrcLang  string
	TgtLang  string
	IDWidth  int
	KeepName bool
}

func (w *WavDir) DatasetID() string {
	return orDefault(w.Dataset, "uclass2")
}

func (w *WavDir) Lang() string {
	return orDefault(w.SrcLang, "en")
}

func (w *WavDir) Count() (int, error) {
	return CountFiles(w.Root, ".wav")
}

func (w *WavDir) Scan(ctx context.Context) (<-chan Sample, <-chan error) {
	return stream(ctx, func(emit func(Sample) bool) error {
		var wavs []string
		err := filepath.Walk(w.Root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".wav") {
				wavs = append(wavs, path)
			}
			return nil
		})
		if err != nil {
			return err
		}
		sort.Strings(wavs)

		width := w.IDWidth
		if width <= 0 {
			width = 6
		}

		for i, wav := range wavs {
			id := fmt.Sprintf("%0*d", width, i+1)

			rel, err := filepath.Rel(w.Root, wav)
			if err != nil {
				rel = wav
			}

			name := id + ".wav"
			if w.KeepName {
				name = filepath.Base(wav)
			}

			s := Sample{
				Record:    WavDirRecord(w.DatasetID(), w.Lang(), w.TgtLang, id, rel),
				AudioPath: wav,
				StageName: name,
			}
			if !emit(s) {
				return nil
			}
		}
		return nil
	})
}

// GuessContext looks for reading/monolog/conversation keywords in path.
func GuessContext(path string) string {
	s := strings.ToLower(path)
	for _, c := range contextKeywords {
		for _, k := range c.keywords {
			if strings.Contains(s, k) {
				return c.context
			}
		}
	}
	return "unknown"
}

// GuessParticipant extracts a speaker number such as "spk_12" or "child3".
func GuessParticipant(text string) (string, bool) {
	m := participantReg.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// WavDirRecord builds the record for the file at rel (relative to the scan
// root). The participant is taken from the file name, then its directory.
func WavDirRecord(dataset, srcLang, tgtLang, id, rel string) manifest.Record {
	var participant any
	if p, ok := GuessParticipant(filepath.Base(rel)); ok {
		participant = p
	} else if p, ok := GuessParticipant(filepath.Dir(rel)); ok {
		participant = p
	}

	var meta manifest.Metadata
	meta.Set("native_acc", nil)
	meta.Set("spoken_acc", nil)
	meta.Set("participant_id", participant)
	meta.Set("context", GuessContext(rel))

	rec := manifest.Record{
		DatasetID:         dataset,
		SampleID:          manifest.StringID(id),
		SrcLang:           srcLang,
		BenchmarkMetadata: meta,
	}
	if tgtLang != "" {
		rec.TgtLang = manifest.StringPtr(tgtLang)
	}
	return rec
}
