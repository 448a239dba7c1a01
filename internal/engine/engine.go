// Package engine implements the generic incremental synchronization loop:
// one state machine per network that polls the remote tip, computes a bounded
// window of new heights, fetches each strictly in order through a chain
// adapter, persists and publishes the result, and advances the per-network
// cursor. Cross-network throughput comes from running many engines
// concurrently under a shared admission gate; within one network heights are
// never processed in parallel.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/devblac/chainsyncd/internal/adapter"
	"github.com/devblac/chainsyncd/internal/gate"
	"github.com/devblac/chainsyncd/internal/metrics"
	"github.com/devblac/chainsyncd/internal/publish"
)

// BlockStore captures the slice of the persistence gateway the engine needs.
type BlockStore interface {
	UpsertBlock(ctx context.Context, b *adapter.NormalizedBlock) error
	MaxHeight(ctx context.Context, network string) (uint64, error)
}

// CursorMode selects how the engine determines the last processed height at
// the start of each cycle.
type CursorMode int

const (
	// TrackInMemory seeds the cursor from storage once at startup and keeps
	// it in process memory across cycles.
	TrackInMemory CursorMode = iota
	// DeriveFromStorage re-reads the max stored height on every cycle.
	DeriveFromStorage
)

// Options configures one engine instance.
type Options struct {
	Network         string
	Topic           string
	Interval        time.Duration
	BatchSize       uint64
	CursorMode      CursorMode
	WarmStartWindow uint64
}

// Engine synchronizes a single network. It is not safe for concurrent use;
// each network gets its own instance.
type Engine struct {
	opts      Options
	adapter   adapter.Adapter
	store     BlockStore
	publisher publish.Publisher
	gate      *gate.Gate
	log       *slog.Logger
	mtr       *metrics.Metrics

	cursor *Cursor
	seeded bool
}

// New builds an engine for one network.
func New(opts Options, a adapter.Adapter, store BlockStore, pub publish.Publisher, g *gate.Gate, log *slog.Logger, mtr *metrics.Metrics) *Engine {
	if opts.BatchSize == 0 {
		opts.BatchSize = 1
	}
	if pub == nil {
		pub = publish.NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		opts:      opts,
		adapter:   a,
		store:     store,
		publisher: pub,
		gate:      g,
		log:       log.With("network", opts.Network),
		mtr:       mtr,
		cursor:    NewCursor(),
	}
}

// LastProcessed returns the in-memory cursor position.
func (e *Engine) LastProcessed() uint64 { return e.cursor.Last() }

// Run loops RunCycle on the configured interval until ctx is cancelled. A
// failed or panicking cycle never stops the loop; the network simply resumes
// on the next tick.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	for {
		e.runCycleSafe(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes exactly one cycle; used by the run --once flag and tests.
func (e *Engine) RunOnce(ctx context.Context) error {
	return e.runCycle(ctx)
}

func (e *Engine) runCycleSafe(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("sync cycle panicked", "panic", fmt.Sprintf("%v", r))
			e.mtr.HeightError(e.opts.Network)
		}
	}()
	if err := e.runCycle(ctx); err != nil && ctx.Err() == nil {
		e.log.Error("sync cycle failed", "error", err)
	}
}

// runCycle performs one poll -> window -> fetch -> persist/publish -> advance
// pass. The gate permit is held for the whole window and released on every
// exit path.
func (e *Engine) runCycle(ctx context.Context) error {
	if e.gate != nil {
		if err := e.gate.Acquire(ctx); err != nil {
			return err
		}
		defer e.gate.Release()
	}

	last, err := e.lastProcessed(ctx)
	if err != nil {
		return fmt.Errorf("determine cursor: %w", err)
	}

	tip, err := e.adapter.TipHeight(ctx)
	if err != nil {
		e.mtr.TipError(e.opts.Network)
		return fmt.Errorf("tip height: %w", err)
	}
	e.mtr.TipObserved(e.opts.Network, tip)

	// Warm start: with no prior rows, seed near the tip instead of replaying
	// the whole chain.
	if last == 0 && e.opts.WarmStartWindow > 0 && !e.cursor.Advanced() {
		if tip > e.opts.WarmStartWindow {
			last = tip - e.opts.WarmStartWindow
		}
		e.cursor.Seed(last)
	}

	if tip <= last {
		e.log.Debug("caught up", "height", last)
		return nil
	}

	start := last + 1
	end := tip
	if max := start + e.opts.BatchSize - 1; end > max {
		end = max
	}

	e.syncWindow(ctx, start, end)
	return nil
}

// syncWindow processes heights [start, end] strictly sequentially. A failed
// height is logged and skipped; the cursor still advances to later successful
// heights, so once a later height lands the failed one is never retried. This
// trades the possibility of a permanent gap for forward progress on chains
// with flaky archival nodes.
func (e *Engine) syncWindow(ctx context.Context, start, end uint64) {
	for h := start; h <= end; h++ {
		if ctx.Err() != nil {
			return
		}

		block, err := e.adapter.FetchBlock(ctx, h)
		if err != nil {
			e.log.Warn("fetch block failed", "height", h, "error", err)
			e.mtr.HeightError(e.opts.Network)
			continue
		}

		if err := e.store.UpsertBlock(ctx, block); err != nil {
			e.log.Warn("persist block failed", "height", h, "error", err)
			e.mtr.HeightError(e.opts.Network)
			continue
		}

		if err := e.publisher.Publish(ctx, e.opts.Topic, block); err != nil {
			// Best-effort delivery: a publish failure never withholds the
			// cursor, the block is already durable.
			e.log.Warn("publish block failed", "height", h, "error", err)
			e.mtr.PublishFailure(e.opts.Network)
		}

		e.cursor.Advance(h)
		e.mtr.BlockProcessed(e.opts.Network, h)
	}
}

// lastProcessed resolves the cursor per the configured mode.
func (e *Engine) lastProcessed(ctx context.Context) (uint64, error) {
	switch e.opts.CursorMode {
	case DeriveFromStorage:
		stored, err := e.store.MaxHeight(ctx, e.opts.Network)
		if err != nil {
			return 0, err
		}
		// The in-memory cursor can run ahead of storage when a warm start
		// seeded past empty storage; never move backwards.
		if last := e.cursor.Last(); last > stored {
			return last, nil
		}
		return stored, nil
	default:
		if !e.seeded {
			stored, err := e.store.MaxHeight(ctx, e.opts.Network)
			if err != nil {
				return 0, err
			}
			e.cursor.Seed(stored)
			e.seeded = true
		}
		return e.cursor.Last(), nil
	}
}
