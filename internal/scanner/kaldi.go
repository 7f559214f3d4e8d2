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

// Kaldi scans a Kaldi-style data directory: "text" and "wav.scp" share
// utterance ids and are inner-joined in text order. When ScriptDir is set,
// its tab-separated "id\t<TAG> words" files are joined too and only ids
// tagged Script are kept (CS-Dialogue marks code-switched turns <MIX>).
type Kaldi struct {
	Dir       string
	AudioRoot string // base for relative wav.scp paths, defaults to Dir
	ScriptDir string
	Script    string
	Dataset   string
	SrcLang   string
	TgtLang   string
	// CodeSwitch lists the mixed languages; set for code-switch corpora.
	CodeSwitch []string
	Context    string
}

func (k *Kaldi) DatasetID() string {
	return orDefault(k.Dataset, "cs-dialogue")
}

func (k *Kaldi) Lang() string {
	return orDefault(k.SrcLang, "zh")
}

func (k *Kaldi) Count() (int, error) {
	rows, err := readKaldiTable(filepath.Join(k.Dir, "text"))
	return len(rows), err
}

func (k *Kaldi) Scan(ctx context.Context) (<-chan Sample, <-chan error) {
	return stream(ctx, func(emit func(Sample) bool) error {
		texts, err := readKaldiTable(filepath.Join(k.Dir, "text"))
		if err != nil {
			return err
		}
		wavs, err := readKaldiTable(filepath.Join(k.Dir, "wav.scp"))
		if err != nil {
			return err
		}
		audio := make(map[string]string, len(wavs))
		for _, row := range wavs {
			audio[row[0]] = row[1]
		}

		var scripts map[string]string
		if k.ScriptDir != "" {
			if scripts, err = readScripts(k.ScriptDir); err != nil {
				return err
			}
		}

		root := orDefault(k.AudioRoot, k.Dir)
		for _, row := range texts {
			id, text := row[0], row[1]

			wav, ok := audio[id]
			if !ok {
				continue
			}
			if scripts != nil {
				tag, ok := scripts[id]
				if !ok || (k.Script != "" && tag != k.Script) {
					continue
				}
			}

			if !filepath.IsAbs(wav) {
				wav = filepath.Join(root, wav)
			}

			s := Sample{
				Record:    KaldiRecord(k.DatasetID(), k.Lang(), k.TgtLang, k.Context, id, text, k.CodeSwitch),
				AudioPath: wav,
				StageName: filepath.Base(wav),
			}
			if !utils.FileExists(wav) {
				s.Err = fmt.Errorf("audio %s not found", wav)
			}
			if !emit(s) {
				return nil
			}
		}
		return nil
	})
}

// readKaldiTable reads "key value" lines split on the first space. Lines
// without a value are skipped.
func readKaldiTable(path string) ([][2]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][2]string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		if !ok {
			continue
		}
		rows = append(rows, [2]string{key, value})
	}
	return rows, sc.Err()
}

func readScripts(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	scripts := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := readScriptFile(filepath.Join(dir, e.Name()), scripts); err != nil {
			return nil, err
		}
	}
	return scripts, nil
}

func readScriptFile(path string, into map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		parts := strings.Split(strings.TrimSpace(sc.Text()), "\t")
		if len(parts) != 2 {
			continue
		}
		tag, _, _ := strings.Cut(parts[1], " ")
		into[parts[0]] = tag
	}
	return sc.Err()
}

// KaldiRecord maps a joined text/wav.scp row. The transcript is the source
// reference; there is no target reference.
func KaldiRecord(dataset, srcLang, tgtLang, context, id, text string, codeSwitch []string) manifest.Record {
	var meta manifest.Metadata
	if len(codeSwitch) > 0 {
		meta.Set("cs_lang", codeSwitch)
	}
	meta.Set("context", orDefault(context, "short"))
	if len(codeSwitch) > 0 {
		meta.Set("dataset_type", "code_switch")
	}

	rec := manifest.Record{
		DatasetID:         dataset,
		SampleID:          manifest.StringID(id),
		SrcRef:            manifest.StringPtr(text),
		SrcLang:           srcLang,
		BenchmarkMetadata: meta,
	}
	if tgtLang != "" {
		rec.TgtLang = manifest.StringPtr(tgtLang)
	}
	return rec
}
