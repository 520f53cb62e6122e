// Package collector holds the single process-wide handle (store, geo
// enricher, model ensemble, config, metrics) that HTTP handlers are built
// against. No other process-wide mutable state exists outside of it
// (§9 design notes: "a single Collector handle... No globals except
// read-only config and the loaded artifacts").
package collector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"honeytrack-collector/internal/config"
	"honeytrack-collector/internal/errorkind"
	"honeytrack-collector/internal/event"
	"honeytrack-collector/internal/geo"
	"honeytrack-collector/internal/metrics"
	"honeytrack-collector/internal/scoring"
	"honeytrack-collector/internal/store"
)

// Collector is the shared handle passed to every HTTP handler.
type Collector struct {
	Config   config.Config
	Store    *store.Store
	Enricher *geo.Enricher
	Ensemble *scoring.Ensemble
	Metrics  *metrics.Registry

	inFlight   sync.WaitGroup
	queueDepth int64
}

// TryAcquireWriteSlot reserves a write queue slot, enforcing the
// backpressure high-water mark from §5/§6. When it returns true, callers must
// call ReleaseWriteSlot once the write completes; when it returns false the
// slot has already been given back and ReleaseWriteSlot must not be called.
func (c *Collector) TryAcquireWriteSlot() bool {
	depth := atomic.AddInt64(&c.queueDepth, 1)
	if int(depth) > c.Config.Backpressure.HighWatermark {
		atomic.AddInt64(&c.queueDepth, -1)
		return false
	}
	return true
}

// ReleaseWriteSlot releases a slot acquired by TryAcquireWriteSlot.
func (c *Collector) ReleaseWriteSlot() {
	atomic.AddInt64(&c.queueDepth, -1)
}

func New(cfg config.Config, st *store.Store, enricher *geo.Enricher, ensemble *scoring.Ensemble, reg *metrics.Registry) *Collector {
	return &Collector{
		Config:   cfg,
		Store:    st,
		Enricher: enricher,
		Ensemble: ensemble,
		Metrics:  reg,
	}
}

// IngestResult is the outcome of processing one event end to end (§4.6).
type IngestResult struct {
	Inserted bool
	Duplicate bool
	Score    event.Score
}

// Ingest runs C2->C3->C4->C5 for a single canonicalized event (C6's
// orchestration step). Canonicalization itself happens earlier in the HTTP
// handler since it can fail before any of this is relevant.
func (c *Collector) Ingest(ctx context.Context, e event.Event) (IngestResult, error) {
	c.inFlight.Add(1)
	defer c.inFlight.Done()

	e.IngestedAt = time.Now().UTC()
	e.ContentHash = event.ContentHash(e)

	e.Geo = event.Geo(c.Enricher.Enrich(ctx, e.SourceAddress))

	score, degraded := c.Ensemble.Score(e)
	e.Score = score
	e.ScoringDegraded = degraded

	// The request deadline only bounds enrichment's own sub-timeout and
	// scoring's pure CPU work; check it once more here so a caller that has
	// already given up never pays for the store write (§5: "on expiry the
	// handler aborts").
	if err := ctx.Err(); err != nil {
		return IngestResult{}, errorkind.Wrap(errorkind.RequestDeadlineExceeded, "request deadline exceeded before store write", err)
	}

	result, err := c.Store.Put(e)
	if err != nil {
		return IngestResult{}, err
	}

	return IngestResult{
		Inserted:  result.Inserted,
		Duplicate: !result.Inserted,
		Score:     score,
	}, nil
}

// AwaitInFlight blocks until all in-progress Ingest calls complete or the
// deadline elapses, for graceful shutdown (§4.8).
func (c *Collector) AwaitInFlight(deadline time.Duration) {
	done := make(chan struct{})
	go func() {
		c.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deadline):
	}
}
