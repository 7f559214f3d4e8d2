package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"speech-manifests/internal/audio"
	"speech-manifests/internal/db"
	"speech-manifests/internal/manifest"
)

// CatalogStore is the part of the database the catalog sync needs.
type CatalogStore interface {
	GetAllKeys() (map[string]bool, error)
	ExistsByHash(datasetID, hash string) (bool, error)
	Insert(r *db.ManifestRecord) (int64, error)
}

type catalogTask struct {
	manifest string
	key      string
	rec      manifest.Record
}

// Catalog mirrors manifests into the database. Workers only read staged
// audio and insert rows; manifests are never modified.
type Catalog struct {
	store          CatalogStore
	dataRoot       string
	defaultWorkers int
	quiet          bool
	running        int32
	stopFlag       int32
	runID          string
	existingKeys   map[string]bool
	// dataset+hash pairs claimed by a worker in this run
	claims *sync.Map
	counters
}

func NewCatalog(store CatalogStore, dataRoot string, defaultWorkers int) *Catalog {
	return &Catalog{
		store:          store,
		dataRoot:       dataRoot,
		defaultWorkers: defaultWorkers,
	}
}

func (c *Catalog) SetQuiet(quiet bool) {
	c.quiet = quiet
}

func (c *Catalog) Stop() {
	atomic.StoreInt32(&c.stopFlag, 1)
}

// RunID identifies the rows inserted by the last run.
func (c *Catalog) RunID() string {
	return c.runID
}

func (c *Catalog) Run(ctx context.Context, manifests []string, limit, workers int) (RunStatus, error) {
	if !atomic.CompareAndSwapInt32(&c.running, 0, 1) {
		return RunStatus{}, errors.New("catalog sync already running")
	}
	defer atomic.StoreInt32(&c.running, 0)

	if workers <= 0 {
		workers = c.defaultWorkers
	}
	if workers <= 0 {
		workers = 1
	}

	atomic.StoreInt32(&c.stopFlag, 0)
	c.runID = uuid.NewString()
	c.claims = &sync.Map{}
	c.reset(0)

	log.Printf("Catalog run %s: %d manifests, limit=%d workers=%d", c.runID, len(manifests), limit, workers)

	log.Println("Loading existing records from database...")
	existing, err := c.store.GetAllKeys()
	if err != nil {
		c.setLastError("load keys: " + err.Error())
		return c.Status(), fmt.Errorf("load keys: %w", err)
	}
	c.existingKeys = existing
	log.Printf("Found %d existing records in database", len(existing))

	tasks, err := c.collect(manifests, limit)
	if err != nil {
		return c.Status(), err
	}
	atomic.StoreInt64(&c.total, int64(len(tasks)))
	log.Printf("Found %d records in manifests", len(tasks))

	bar := newProgress("catalog", int64(len(tasks)), c.quiet)
	taskChan := make(chan catalogTask, 100)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go c.worker(&wg, taskChan, bar)
	}

	for _, task := range tasks {
		if atomic.LoadInt32(&c.stopFlag) == 1 || ctx.Err() != nil {
			break
		}
		taskChan <- task
	}
	close(taskChan)

	wg.Wait()
	bar.Done()

	st := c.Status()
	log.Printf("✓ Catalog complete: processed=%d skipped=%d errors=%d", st.Processed, st.Skipped, st.Errors)
	return st, ctx.Err()
}

// collect reads every manifest, dropping malformed lines and records seen
// earlier in this run.
func (c *Catalog) collect(manifests []string, limit int) ([]catalogTask, error) {
	var tasks []catalogTask
	seen := make(map[string]bool)

	for _, path := range manifests {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		for rec, err := range manifest.Records(f) {
			if err != nil {
				log.Printf("⚠ %s: %v", path, err)
				atomic.AddInt64(&c.errors, 1)
				continue
			}
			key := db.CatalogKey(rec.DatasetID, rec.SampleID.Key())
			if seen[key] {
				atomic.AddInt64(&c.skipped, 1)
				continue
			}
			seen[key] = true
			tasks = append(tasks, catalogTask{manifest: path, key: key, rec: rec})
			if limit > 0 && len(tasks) >= limit {
				f.Close()
				return tasks, nil
			}
		}
		f.Close()
	}
	return tasks, nil
}

func (c *Catalog) worker(wg *sync.WaitGroup, tasks <-chan catalogTask, bar *progress) {
	defer wg.Done()

	for task := range tasks {
		if atomic.LoadInt32(&c.stopFlag) == 1 {
			return
		}
		c.process(task)
		bar.Increment()
	}
}

func (c *Catalog) process(task catalogTask) {
	rec := task.rec
	id := rec.DatasetID + "/" + rec.SampleID.String()

	// quick check by key, no file access
	if c.existingKeys[task.key] {
		atomic.AddInt64(&c.skipped, 1)
		return
	}

	meta, err := rec.BenchmarkMetadata.MarshalJSON()
	if err != nil {
		c.fail(id, fmt.Errorf("metadata: %w", err))
		return
	}

	row := &db.ManifestRecord{
		RunID:             c.runID,
		Manifest:          task.manifest,
		DatasetID:         rec.DatasetID,
		SampleKey:         rec.SampleID.Key(),
		SrcLang:           rec.SrcLang,
		TgtLang:           deref(rec.TgtLang),
		SrcAudio:          deref(rec.SrcAudio),
		SrcRef:            deref(rec.SrcRef),
		TgtRef:            deref(rec.TgtRef),
		BenchmarkMetadata: string(meta),
	}

	if path, ok := rec.AudioPath(c.dataRoot); ok {
		hash, err := audio.MD5File(path)
		if err != nil {
			c.fail(id, fmt.Errorf("hash: %w", err))
			return
		}

		claim := rec.DatasetID + "\x00" + hash
		if _, taken := c.claims.LoadOrStore(claim, struct{}{}); taken {
			log.Printf("⚠ %s: audio already catalogued under another sample", id)
			atomic.AddInt64(&c.skipped, 1)
			return
		}

		dup, err := c.store.ExistsByHash(rec.DatasetID, hash)
		if err != nil {
			c.claims.Delete(claim)
			c.fail(id, fmt.Errorf("hash lookup: %w", err))
			return
		}
		if dup {
			log.Printf("⚠ %s: audio already catalogued under another sample", id)
			atomic.AddInt64(&c.skipped, 1)
			return
		}
		row.FileHash = hash

		am, pcm, err := audio.GetMetadata(path)
		if err != nil {
			c.claims.Delete(claim)
			c.fail(id, fmt.Errorf("metadata: %w", err))
			return
		}
		levels := audio.GetLevels(pcm.Mono())

		row.DurationSec = am.DurationSec
		row.SampleRate = am.SampleRate
		row.Channels = am.Channels
		row.BitDepth = am.BitDepth
		row.FileSize = am.FileSize
		row.SNRWada = finite(levels.SNRWada)
		row.NoiseLevel = levels.NoiseLevel
		row.RMSDB = finite(levels.RMSDB)
		row.PeakDB = finite(levels.PeakDB)
		row.AudioMetadata = am.ToJSON()
	}

	if _, err := c.store.Insert(row); err != nil {
		if row.FileHash != "" {
			c.claims.Delete(row.DatasetID + "\x00" + row.FileHash)
		}
		c.fail(id, fmt.Errorf("insert: %w", err))
		return
	}
	atomic.AddInt64(&c.processed, 1)
}

// finite guards numeric columns against NaN/Inf and absurd estimates.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v > 999 || v < -999 {
		return 0
	}
	return v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
