package scanner

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"speech-manifests/internal/manifest"
	"speech-manifests/internal/utils"
)

// MCIF reads the TRANS samples of an MCIF reference XML. The long form has
// one audio file per sample; the short form lists the sample's segments
// comma-separated and each segment becomes its own record. Samples are
// numbered from 0 and staged as <n>.wav.
type MCIF struct {
	XML      string
	AudioDir string // base for audio_path entries
	Form     string // short or long
	Dataset  string
	SrcLang  string
	TgtLang  string
}

type mcifSample struct {
	IID       string `xml:"iid,attr"`
	AudioPath string `xml:"audio_path"`
}

type mcifSegment struct {
	docID string
	path  string
}

func (m *MCIF) DatasetID() string {
	return orDefault(m.Dataset, "mcif_v1.0")
}

func (m *MCIF) Lang() string {
	return orDefault(m.SrcLang, "en")
}

func (m *MCIF) form() string {
	return orDefault(m.Form, "short")
}

func (m *MCIF) Count() (int, error) {
	segs, err := m.segments()
	return len(segs), err
}

func (m *MCIF) Scan(ctx context.Context) (<-chan Sample, <-chan error) {
	return stream(ctx, func(emit func(Sample) bool) error {
		segs, err := m.segments()
		if err != nil {
			return err
		}

		for i, seg := range segs {
			path := seg.path
			if !filepath.IsAbs(path) {
				path = filepath.Join(m.AudioDir, path)
			}

			s := Sample{
				Record:    MCIFRecord(m.DatasetID(), m.Lang(), m.TgtLang, m.form(), i, seg.docID, seg.path),
				AudioPath: path,
				StageName: strconv.Itoa(i) + ".wav",
			}
			if !utils.FileExists(path) {
				s.Err = fmt.Errorf("audio %s not found", path)
			}
			if !emit(s) {
				return nil
			}
		}
		return nil
	})
}

func (m *MCIF) segments() ([]mcifSegment, error) {
	samples, err := readMCIF(m.XML)
	if err != nil {
		return nil, err
	}

	var segs []mcifSegment
	for _, s := range samples {
		if m.form() == "long" {
			segs = append(segs, mcifSegment{docID: s.IID, path: s.AudioPath})
			continue
		}
		n := len(segs)
		for _, p := range strings.Split(s.AudioPath, ",") {
			if p = strings.TrimSpace(p); p != "" {
				segs = append(segs, mcifSegment{docID: s.IID, path: p})
			}
		}
		if len(segs) == n {
			return nil, fmt.Errorf("%s: empty segment list for iid=%s", m.XML, s.IID)
		}
	}
	return segs, nil
}

// readMCIF collects every <sample task="TRANS"> at any depth.
func readMCIF(path string) ([]mcifSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []mcifSample
	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "sample" || attr(start, "task") != "TRANS" {
			continue
		}
		var s mcifSample
		if err := dec.DecodeElement(&s, &start); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		s.IID = strings.TrimSpace(s.IID)
		s.AudioPath = strings.TrimSpace(s.AudioPath)
		if s.IID == "" {
			return nil, fmt.Errorf("%s: sample without iid", path)
		}
		if s.AudioPath == "" {
			return nil, fmt.Errorf("%s: missing audio_path for iid=%s", path, s.IID)
		}
		out = append(out, s)
	}
	return out, nil
}

func attr(e xml.StartElement, name string) string {
	for _, a := range e.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func MCIFRecord(dataset, srcLang, tgtLang, form string, index int, docID, original string) manifest.Record {
	var meta manifest.Metadata
	meta.Set("context", form)
	meta.Set("dataset_type", "unseen")
	meta.Set("subset", "test")
	meta.Set("original_id", original)
	meta.Set("doc_id", docID)

	rec := manifest.Record{
		DatasetID:         dataset,
		SampleID:          manifest.IntID(int64(index)),
		SrcLang:           srcLang,
		BenchmarkMetadata: meta,
	}
	if tgtLang != "" {
		rec.TgtLang = manifest.StringPtr(tgtLang)
	}
	return rec
}
