package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"speech-manifests/internal/audio"
	"speech-manifests/internal/config"
	"speech-manifests/internal/manifest"
	"speech-manifests/internal/scanner"
	"speech-manifests/internal/utils"
)

type GenerateOptions struct {
	DataRoot  string
	Output    string
	Mode      manifest.Mode
	PathStyle manifest.PathStyle
	// Overwrite re-copies audio that is already staged.
	Overwrite bool
	Limit     int
	Quiet     bool
}

// Generator stages the audio of a source under
// <data root>/<dataset>/audio/<lang>/ and writes its records to a manifest.
type Generator struct {
	opts GenerateOptions
	counters
}

func NewGenerator(opts GenerateOptions) *Generator {
	return &Generator{opts: opts}
}

func (g *Generator) Run(ctx context.Context, src scanner.Source) (RunStatus, error) {
	if g.opts.DataRoot == "" {
		return RunStatus{}, config.ErrDataRootUnset
	}

	total, err := src.Count()
	if err != nil {
		log.Printf("⚠ count %s: %v", src.DatasetID(), err)
	}
	if g.opts.Limit > 0 && (total == 0 || g.opts.Limit < total) {
		total = g.opts.Limit
	}
	g.reset(int64(total))

	w, err := manifest.Create(g.opts.Output, g.opts.Mode, manifest.WithDataRoot(g.opts.DataRoot))
	if err != nil {
		return g.Status(), err
	}
	defer w.Close()

	stageDir := filepath.Join(g.opts.DataRoot, src.DatasetID(), "audio", src.Lang())
	log.Printf("Generating %s into %s (mode=%s, audio in %s)", src.DatasetID(), g.opts.Output, g.opts.Mode, stageDir)

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bar := newProgress(src.DatasetID(), int64(total), g.opts.Quiet)
	samples, errs := src.Scan(scanCtx)

	limited := false
	for s := range samples {
		if g.opts.Limit > 0 && atomic.LoadInt64(&g.processed) >= int64(g.opts.Limit) {
			limited = true
			cancel()
			break
		}
		g.process(w, stageDir, s)
		bar.Increment()
	}
	for range samples {
	}
	bar.Done()

	scanErr := <-errs
	if scanErr != nil && !(limited && errors.Is(scanErr, context.Canceled)) {
		return g.Status(), fmt.Errorf("scan %s: %w", src.DatasetID(), scanErr)
	}

	if err := w.Close(); err != nil {
		return g.Status(), err
	}

	st := g.Status()
	log.Printf("✓ %s: processed=%d skipped=%d errors=%d in %s",
		g.opts.Output, st.Processed, st.Skipped, st.Errors, st.Elapsed)
	return st, nil
}

// process handles one sample; failures are counted, never returned.
func (g *Generator) process(w *manifest.Writer, stageDir string, s scanner.Sample) {
	id := s.Record.SampleID.String()
	defer func() {
		if r := recover(); r != nil {
			g.fail(id, fmt.Errorf("panic: %v", r))
		}
	}()

	if s.Err != nil {
		g.fail(id, s.Err)
		return
	}
	if w.Seen(s.Record.SampleID) {
		atomic.AddInt64(&g.skipped, 1)
		return
	}

	rec := s.Record
	if s.AudioPath != "" {
		dst := filepath.Join(stageDir, s.StageName)
		if err := stage(s.AudioPath, dst, g.opts.Overwrite); err != nil {
			g.fail(id, fmt.Errorf("stage audio: %w", err))
			return
		}
		ref, err := manifest.AudioRef(g.opts.DataRoot, dst, g.opts.PathStyle)
		if err != nil {
			g.fail(id, err)
			return
		}
		rec.SrcAudio = &ref
	}

	written, err := w.Write(rec)
	if err != nil {
		g.fail(id, err)
		return
	}
	if !written {
		atomic.AddInt64(&g.skipped, 1)
		return
	}
	atomic.AddInt64(&g.processed, 1)
}

// stage copies src to dst, decoding to WAV when the staged name asks for a
// different format (FLAC and MP3 sources).
func stage(src, dst string, overwrite bool) error {
	if strings.EqualFold(filepath.Ext(src), filepath.Ext(dst)) {
		_, err := utils.StageFile(src, dst, overwrite)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	_, err := audio.Transcode(src, dst, overwrite)
	return err
}
