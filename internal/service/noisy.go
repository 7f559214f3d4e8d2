package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"speech-manifests/internal/audio"
	"speech-manifests/internal/config"
	"speech-manifests/internal/manifest"
	"speech-manifests/internal/noise"
)

type NoisyOptions struct {
	DataRoot    string
	InputDir    string // *.jsonl manifests of the clean dataset
	ManifestDir string
	NoiseType   string // ambient, babble
	// DatasetID defaults to noisy_fleurs_<noise type>.
	DatasetID string
	SNR       noise.SNR
	Mode      manifest.Mode
	PathStyle manifest.PathStyle
	Quiet     bool
}

// NoisyMixer derives a noisy copy of every manifest in InputDir. Each source
// file gets one noise clip from the pool, mixed once per run and written to
// <data root>/<dataset>_wavs/<src_lang>/<name>_<noise type>.wav. Records in
// other manifests that share the source file reuse that mix and its SNR.
type NoisyMixer struct {
	opts  NoisyOptions
	pool  *noise.Pool
	rng   *rand.Rand
	mixed map[string]mixedAudio
	counters
}

type mixedAudio struct {
	dst   string
	snrDB float64
}

func NewNoisyMixer(opts NoisyOptions, pool *noise.Pool, rng *rand.Rand) *NoisyMixer {
	if opts.DatasetID == "" {
		opts.DatasetID = "noisy_fleurs_" + opts.NoiseType
	}
	return &NoisyMixer{opts: opts, pool: pool, rng: rng}
}

func (m *NoisyMixer) DatasetID() string {
	return m.opts.DatasetID
}

func (m *NoisyMixer) Run(ctx context.Context) (RunStatus, error) {
	if m.opts.DataRoot == "" {
		return RunStatus{}, config.ErrDataRootUnset
	}

	inputs, err := filepath.Glob(filepath.Join(m.opts.InputDir, "*.jsonl"))
	if err != nil {
		return RunStatus{}, err
	}
	sort.Strings(inputs)
	if len(inputs) == 0 {
		return RunStatus{}, fmt.Errorf("no *.jsonl manifests in %s", m.opts.InputDir)
	}

	var total int64
	for _, in := range inputs {
		ids, err := manifest.LoadIDs(in)
		if err != nil {
			return RunStatus{}, err
		}
		total += int64(len(ids))
	}
	m.reset(total)
	m.mixed = make(map[string]mixedAudio)

	log.Printf("Mixing %d manifests with %d %s clips at %s dB", len(inputs), m.pool.Len(), m.opts.NoiseType, m.opts.SNR)
	bar := newProgress(m.opts.DatasetID, total, m.opts.Quiet)
	defer bar.Done()

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return m.Status(), err
		}
		out := filepath.Join(m.opts.ManifestDir, m.opts.DatasetID, filepath.Base(in))
		if err := m.mixManifest(ctx, in, out, bar); err != nil {
			return m.Status(), err
		}
		log.Printf("✓ saved noisy manifest %s", out)
	}

	return m.Status(), nil
}

func (m *NoisyMixer) mixManifest(ctx context.Context, in, out string, bar *progress) error {
	f, err := os.Open(in)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := manifest.Create(out, m.opts.Mode, manifest.WithDataRoot(m.opts.DataRoot))
	if err != nil {
		return err
	}
	defer w.Close()

	for rec, err := range manifest.Records(f) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			var le *manifest.LineError
			if errors.As(err, &le) {
				m.fail(fmt.Sprintf("%s:%d", filepath.Base(in), le.Line), le.Err)
				continue
			}
			return err
		}

		m.mixRecord(w, rec)
		bar.Increment()
	}

	return w.Close()
}

func (m *NoisyMixer) mixRecord(w *manifest.Writer, rec manifest.Record) {
	id := rec.SampleID.String()
	defer func() {
		if r := recover(); r != nil {
			m.fail(id, fmt.Errorf("panic: %v", r))
		}
	}()

	rec.DatasetID = m.opts.DatasetID
	if w.Seen(rec.SampleID) {
		atomic.AddInt64(&m.skipped, 1)
		return
	}

	// records without audio pass through
	if srcPath, ok := rec.AudioPath(m.opts.DataRoot); ok {
		mix, ok := m.mixed[srcPath]
		if !ok {
			dst, res, err := m.mixFile(srcPath, rec.SrcLang)
			if err != nil {
				m.fail(id, err)
				return
			}
			mix = mixedAudio{dst: dst, snrDB: res.SNRDB}
			m.mixed[srcPath] = mix
		}
		ref, err := manifest.AudioRef(m.opts.DataRoot, mix.dst, m.opts.PathStyle)
		if err != nil {
			m.fail(id, err)
			return
		}
		rec.SrcAudio = &ref

		rec.BenchmarkMetadata = rec.BenchmarkMetadata.Clone()
		rec.BenchmarkMetadata.Set("noise_type", m.opts.NoiseType)
		rec.BenchmarkMetadata.Set("noise_snr_db", mix.snrDB)
	}

	written, err := w.Write(rec)
	if err != nil {
		m.fail(id, err)
		return
	}
	if written {
		atomic.AddInt64(&m.processed, 1)
	} else {
		atomic.AddInt64(&m.skipped, 1)
	}
}

func (m *NoisyMixer) mixFile(srcPath, lang string) (string, noise.Result, error) {
	signal, err := audio.ReadAudio(srcPath)
	if err != nil {
		return "", noise.Result{}, fmt.Errorf("read signal: %w", err)
	}

	clip, err := m.pool.Pick(m.rng)
	if err != nil {
		return "", noise.Result{}, err
	}
	noisePCM, err := audio.ReadAudio(clip)
	if err != nil {
		return "", noise.Result{}, fmt.Errorf("read noise %s: %w", clip, err)
	}

	res, err := noise.Apply(signal.Mono(), noisePCM.Mono(), m.opts.SNR, m.rng)
	if err != nil {
		return "", noise.Result{}, fmt.Errorf("mix with %s: %w", filepath.Base(clip), err)
	}

	name := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath)) + "_" + m.opts.NoiseType + ".wav"
	dst := filepath.Join(m.opts.DataRoot, m.opts.DatasetID+"_wavs", lang, name)
	if err := audio.WriteWAV(dst, signal.SampleRate, res.Samples); err != nil {
		return "", noise.Result{}, err
	}
	return dst, res, nil
}
