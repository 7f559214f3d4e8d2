package service

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

type RunStatus struct {
	Total     int64   `json:"total"`
	Processed int64   `json:"processed"`
	Skipped   int64   `json:"skipped"`
	Errors    int64   `json:"errors"`
	Percent   float64 `json:"percent"`
	Rate      float64 `json:"rate"`
	Elapsed   string  `json:"elapsed"`
	LastError string  `json:"last_error,omitempty"`
}

// counters are shared by the batch services; safe for concurrent workers.
type counters struct {
	processed int64
	skipped   int64
	errors    int64
	total     int64
	startTime time.Time
	lastError string
	mu        sync.Mutex
}

func (c *counters) reset(total int64) {
	atomic.StoreInt64(&c.processed, 0)
	atomic.StoreInt64(&c.skipped, 0)
	atomic.StoreInt64(&c.errors, 0)
	atomic.StoreInt64(&c.total, total)
	c.setLastError("")
	c.startTime = time.Now()
}

func (c *counters) setLastError(err string) {
	c.mu.Lock()
	c.lastError = err
	c.mu.Unlock()
}

// fail logs a per-sample failure and counts it; the batch goes on.
func (c *counters) fail(sampleID string, err error) {
	log.Printf("⚠ sample %s: %v", sampleID, err)
	c.setLastError(sampleID + ": " + err.Error())
	atomic.AddInt64(&c.errors, 1)
}

func (c *counters) Status() RunStatus {
	p := atomic.LoadInt64(&c.processed)
	sk := atomic.LoadInt64(&c.skipped)
	e := atomic.LoadInt64(&c.errors)
	t := atomic.LoadInt64(&c.total)

	var pct, rate float64
	elapsed := time.Since(c.startTime)

	if t > 0 {
		pct = float64(p+sk+e) / float64(t) * 100
	}
	if elapsed.Seconds() > 0 {
		rate = float64(p) / elapsed.Seconds()
	}

	c.mu.Lock()
	lastErr := c.lastError
	c.mu.Unlock()

	return RunStatus{
		Total:     t,
		Processed: p,
		Skipped:   sk,
		Errors:    e,
		Percent:   pct,
		Rate:      rate,
		Elapsed:   elapsed.Round(time.Second).String(),
		LastError: lastErr,
	}
}
