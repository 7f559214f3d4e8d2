package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"speech-manifests/internal/manifest"
)

// Uploader is the object store as seen by Publisher.
type Uploader interface {
	Exists(ctx context.Context, objectName string, size int64) (bool, error)
	UploadFile(ctx context.Context, objectName, path, contentType string) error
}

// Publisher uploads a manifest and the audio it references. Objects keep
// their data-root relative layout under Prefix, and the manifest goes to
// <prefix>/manifests/<dataset>/<file>.
type Publisher struct {
	store    Uploader
	dataRoot string
	prefix   string
	quiet    bool
	counters
}

func NewPublisher(store Uploader, dataRoot, prefix string, quiet bool) *Publisher {
	return &Publisher{
		store:    store,
		dataRoot: dataRoot,
		prefix:   strings.Trim(prefix, "/"),
		quiet:    quiet,
	}
}

func (p *Publisher) objectName(parts ...string) string {
	return path.Join(append([]string{p.prefix}, parts...)...)
}

func (p *Publisher) Publish(ctx context.Context, manifestPath string) (RunStatus, error) {
	records, err := manifest.ReadFile(manifestPath)
	if err != nil {
		return RunStatus{}, err
	}
	p.reset(int64(len(records)))

	bar := newProgress("publish", int64(len(records)), p.quiet)
	uploaded := make(map[string]bool)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			bar.Done()
			return p.Status(), err
		}
		p.publishAudio(ctx, rec, uploaded)
		bar.Increment()
	}
	bar.Done()

	dataset := "unknown"
	if len(records) > 0 {
		dataset = records[0].DatasetID
	}
	object := p.objectName("manifests", dataset, filepath.Base(manifestPath))
	if err := p.store.UploadFile(ctx, object, manifestPath, "application/x-ndjson"); err != nil {
		return p.Status(), err
	}

	st := p.Status()
	log.Printf("✓ published %s: uploaded=%d skipped=%d errors=%d", object, st.Processed, st.Skipped, st.Errors)
	return st, nil
}

func (p *Publisher) publishAudio(ctx context.Context, rec manifest.Record, uploaded map[string]bool) {
	local, ok := rec.AudioPath(p.dataRoot)
	if !ok {
		atomic.AddInt64(&p.skipped, 1)
		return
	}

	object := p.objectName(strings.TrimPrefix(*rec.SrcAudio, "/"))
	if uploaded[object] {
		atomic.AddInt64(&p.skipped, 1)
		return
	}

	id := rec.SampleID.String()
	fi, err := os.Stat(local)
	if err != nil {
		p.fail(id, err)
		return
	}

	exists, err := p.store.Exists(ctx, object, fi.Size())
	if err != nil {
		p.fail(id, err)
		return
	}
	if exists {
		uploaded[object] = true
		atomic.AddInt64(&p.skipped, 1)
		return
	}

	if err := p.store.UploadFile(ctx, object, local, contentType(local)); err != nil {
		p.fail(id, fmt.Errorf("upload: %w", err))
		return
	}
	uploaded[object] = true
	atomic.AddInt64(&p.processed, 1)
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".jsonl":
		return "application/x-ndjson"
	}
	return "application/octet-stream"
}
