package scanner

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"speech-manifests/internal/manifest"
	"speech-manifests/internal/utils"
)

// WMT reads the speech documents of a WMT test-set XML (wmttest2024.en-de.all.xml).
// Every doc in the first collection whose domain matches becomes one
// long-form sample, numbered from 0 in document order.
type WMT struct {
	XML      string
	AudioDir string // holds <doc id without "test-en-speech_">.wav
	Dataset  string
	SrcLang  string
	TgtLang  string
	Domain   string
}

const wmtAudioPrefix = "test-en-speech_"

type wmtDataset struct {
	Collections []struct {
		Docs []wmtDoc `xml:"doc"`
	} `xml:"collection"`
}

type wmtDoc struct {
	ID           string    `xml:"id,attr"`
	Domain       string    `xml:"domain,attr"`
	Src          []wmtText `xml:"src"`
	Refs         []wmtText `xml:"ref"`
	Supplemental []wmtText `xml:"supplemental"`
}

type wmtText struct {
	Lang  string `xml:"lang,attr"`
	Type  string `xml:"type,attr"`
	Paras []struct {
		Segs []string `xml:"seg"`
	} `xml:"p"`
}

// first returns the first segment of the first paragraph.
func (t wmtText) first() (string, bool) {
	if len(t.Paras) == 0 || len(t.Paras[0].Segs) == 0 {
		return "", false
	}
	return t.Paras[0].Segs[0], true
}

func (w *WMT) DatasetID() string {
	return orDefault(w.Dataset, "wmt24")
}

func (w *WMT) Lang() string {
	return orDefault(w.SrcLang, "en")
}

func (w *WMT) Count() (int, error) {
	docs, err := w.docs()
	return len(docs), err
}

func (w *WMT) Scan(ctx context.Context) (<-chan Sample, <-chan error) {
	return stream(ctx, func(emit func(Sample) bool) error {
		docs, err := w.docs()
		if err != nil {
			return err
		}

		for i, doc := range docs {
			name := strings.TrimPrefix(doc.ID, wmtAudioPrefix) + ".wav"
			wav := filepath.Join(w.AudioDir, name)

			s := Sample{
				Record:    wmtRecord(w.DatasetID(), w.Lang(), w.TgtLang, i, doc),
				AudioPath: wav,
				StageName: name,
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

func (w *WMT) docs() ([]wmtDoc, error) {
	f, err := os.Open(w.XML)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ds wmtDataset
	if err := xml.NewDecoder(f).Decode(&ds); err != nil {
		return nil, fmt.Errorf("%s: %w", w.XML, err)
	}
	if len(ds.Collections) == 0 {
		return nil, fmt.Errorf("%s: no collection", w.XML)
	}

	domain := orDefault(w.Domain, "speech")
	var docs []wmtDoc
	for _, doc := range ds.Collections[0].Docs {
		if doc.Domain == domain {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// wmtRecord maps one document. The source reference is the clean_source
// supplement when the doc carries one, else the plain source. The target
// reference is the first ref in tgtLang.
func wmtRecord(dataset, srcLang, tgtLang string, index int, doc wmtDoc) manifest.Record {
	var meta manifest.Metadata
	meta.Set("doc_id", doc.ID)
	meta.Set("dataset_type", "longform")

	rec := manifest.Record{
		DatasetID:         dataset,
		SampleID:          manifest.IntID(int64(index)),
		SrcLang:           srcLang,
		BenchmarkMetadata: meta,
	}

	for _, sup := range doc.Supplemental {
		if sup.Type != "clean_source" {
			continue
		}
		if text, ok := sup.first(); ok {
			rec.SrcRef = manifest.StringPtr(text)
			break
		}
	}
	if rec.SrcRef == nil && len(doc.Src) > 0 {
		if text, ok := doc.Src[0].first(); ok {
			rec.SrcRef = manifest.StringPtr(text)
		}
	}

	if tgtLang != "" {
		rec.TgtLang = manifest.StringPtr(tgtLang)
		for _, ref := range doc.Refs {
			if ref.Lang != tgtLang {
				continue
			}
			if text, ok := ref.first(); ok {
				rec.TgtRef = manifest.StringPtr(text)
				break
			}
		}
	}
	return rec
}
