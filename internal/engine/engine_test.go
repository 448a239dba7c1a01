package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devblac/chainsyncd/internal/adapter"
	"github.com/devblac/chainsyncd/internal/catalog"
	"github.com/devblac/chainsyncd/internal/gate"
	"github.com/devblac/chainsyncd/internal/publish"
)

type fakeAdapter struct {
	tip       uint64
	tipErr    error
	failAt    map[uint64]error
	fetchFn   func(height uint64)
	fetched   []uint64
	fetchSlow time.Duration
}

func (f *fakeAdapter) Runtime() catalog.Runtime { return catalog.RuntimeEVM }

func (f *fakeAdapter) TipHeight(ctx context.Context) (uint64, error) {
	if f.tipErr != nil {
		return 0, f.tipErr
	}
	return f.tip, nil
}

func (f *fakeAdapter) FetchBlock(ctx context.Context, height uint64) (*adapter.NormalizedBlock, error) {
	if f.fetchSlow > 0 {
		select {
		case <-time.After(f.fetchSlow):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fetchFn != nil {
		f.fetchFn(height)
	}
	f.fetched = append(f.fetched, height)
	if err, ok := f.failAt[height]; ok {
		return nil, err
	}
	return &adapter.NormalizedBlock{
		Network:   "testnet",
		Height:    height,
		Hash:      "0xabc",
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}, nil
}

type fakeStore struct {
	mu        sync.Mutex
	max       uint64
	upserted  []uint64
	upsertErr map[uint64]error
}

func (f *fakeStore) UpsertBlock(ctx context.Context, b *adapter.NormalizedBlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.upsertErr[b.Height]; ok {
		return err
	}
	f.upserted = append(f.upserted, b.Height)
	if b.Height > f.max {
		f.max = b.Height
	}
	return nil
}

func (f *fakeStore) MaxHeight(ctx context.Context, network string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.max, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
	blocks []uint64
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, b *adapter.NormalizedBlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.blocks = append(f.blocks, b.Height)
	return nil
}

func newTestEngine(t *testing.T, opts Options, a adapter.Adapter, store BlockStore, pub publish.Publisher) *Engine {
	t.Helper()
	if opts.Network == "" {
		opts.Network = "testnet"
	}
	if opts.Topic == "" {
		opts.Topic = "evm_blockchain_data"
	}
	if opts.Interval == 0 {
		opts.Interval = time.Second
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 10
	}
	return New(opts, a, store, pub, nil, nil, nil)
}

func TestWindowHappyPath(t *testing.T) {
	a := &fakeAdapter{tip: 105}
	s := &fakeStore{max: 100}
	p := &fakePublisher{}
	e := newTestEngine(t, Options{BatchSize: 10}, a, s, p)

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	want := []uint64{101, 102, 103, 104, 105}
	assertHeights(t, "fetched", a.fetched, want)
	assertHeights(t, "upserted", s.upserted, want)
	assertHeights(t, "published", p.blocks, want)
	if got := e.LastProcessed(); got != 105 {
		t.Fatalf("cursor = %d, want 105", got)
	}
	for _, topic := range p.topics {
		if topic != "evm_blockchain_data" {
			t.Fatalf("unexpected topic %q", topic)
		}
	}
}

func TestCaughtUpIsNoOp(t *testing.T) {
	a := &fakeAdapter{tip: 100}
	s := &fakeStore{max: 100}
	p := &fakePublisher{}
	e := newTestEngine(t, Options{}, a, s, p)

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(a.fetched) != 0 || len(s.upserted) != 0 || len(p.blocks) != 0 {
		t.Fatalf("expected zero fetch/persist/publish, got %d/%d/%d", len(a.fetched), len(s.upserted), len(p.blocks))
	}
	if got := e.LastProcessed(); got != 100 {
		t.Fatalf("cursor = %d, want 100", got)
	}
}

// A mid-window failure is skipped: later heights still advance the cursor,
// leaving a permanent gap at the failed height.
func TestWindowGapSkipsFailedHeight(t *testing.T) {
	a := &fakeAdapter{
		tip:    103,
		failAt: map[uint64]error{102: &adapter.TransportError{Op: "block 102", Err: errors.New("boom")}},
	}
	s := &fakeStore{max: 100}
	e := newTestEngine(t, Options{}, a, s, &fakePublisher{})

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	assertHeights(t, "upserted", s.upserted, []uint64{101, 103})
	if got := e.LastProcessed(); got != 103 {
		t.Fatalf("cursor = %d, want 103 (gap at 102 skipped)", got)
	}

	// The next cycle resumes after the cursor; 102 is never retried.
	a.tip = 104
	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	for _, h := range a.fetched[3:] {
		if h == 102 {
			t.Fatalf("height 102 was retried after cursor passed it")
		}
	}
}

func TestWarmStartSeedsNearTip(t *testing.T) {
	a := &fakeAdapter{tip: 1000}
	s := &fakeStore{max: 0}
	e := newTestEngine(t, Options{WarmStartWindow: 10, BatchSize: 100}, a, s, &fakePublisher{})

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if len(a.fetched) == 0 || a.fetched[0] != 991 {
		t.Fatalf("first fetched height = %v, want window to start at 991 (seed 990)", a.fetched)
	}
	if got := e.LastProcessed(); got != 1000 {
		t.Fatalf("cursor = %d, want 1000", got)
	}
}

func TestWarmStartIgnoredWithHistory(t *testing.T) {
	a := &fakeAdapter{tip: 1000}
	s := &fakeStore{max: 995}
	e := newTestEngine(t, Options{WarmStartWindow: 10}, a, s, &fakePublisher{})

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(a.fetched) == 0 || a.fetched[0] != 996 {
		t.Fatalf("first fetched height = %v, want 996 (resume from storage, not warm start)", a.fetched)
	}
}

func TestTipErrorAbortsCycle(t *testing.T) {
	a := &fakeAdapter{tipErr: &adapter.TransportError{Op: "latest header", Err: errors.New("down")}}
	s := &fakeStore{max: 50}
	e := newTestEngine(t, Options{}, a, s, &fakePublisher{})

	if err := e.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error from tip failure")
	}
	if len(a.fetched) != 0 {
		t.Fatalf("no heights should be fetched after tip failure, got %v", a.fetched)
	}
	if got := e.LastProcessed(); got != 50 {
		t.Fatalf("cursor = %d, want unchanged 50", got)
	}
}

func TestPublishFailureStillAdvancesCursor(t *testing.T) {
	a := &fakeAdapter{tip: 102}
	s := &fakeStore{max: 100}
	p := &fakePublisher{err: &publish.Error{Topic: "evm_blockchain_data", Err: errors.New("bus down")}}
	e := newTestEngine(t, Options{}, a, s, p)

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	assertHeights(t, "upserted", s.upserted, []uint64{101, 102})
	if got := e.LastProcessed(); got != 102 {
		t.Fatalf("cursor = %d, want 102 despite publish failures", got)
	}
}

func TestPersistFailureDoesNotAdvanceCursor(t *testing.T) {
	a := &fakeAdapter{tip: 101}
	s := &fakeStore{max: 100, upsertErr: map[uint64]error{101: errors.New("disk full")}}
	e := newTestEngine(t, Options{}, a, s, &fakePublisher{})

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got := e.LastProcessed(); got != 100 {
		t.Fatalf("cursor = %d, want unchanged 100", got)
	}
}

func TestCursorMonotonicAcrossCycles(t *testing.T) {
	a := &fakeAdapter{tip: 110}
	s := &fakeStore{max: 100}
	e := newTestEngine(t, Options{BatchSize: 5}, a, s, &fakePublisher{})

	prev := uint64(0)
	tips := []uint64{110, 107, 103, 120}
	for _, tip := range tips {
		a.tip = tip
		if err := e.RunOnce(context.Background()); err != nil {
			t.Fatalf("cycle tip=%d: %v", tip, err)
		}
		if got := e.LastProcessed(); got < prev {
			t.Fatalf("cursor decreased: %d -> %d", prev, got)
		} else {
			prev = got
		}
	}
}

func TestBatchSizeBoundsWindow(t *testing.T) {
	a := &fakeAdapter{tip: 1000}
	s := &fakeStore{max: 100}
	e := newTestEngine(t, Options{BatchSize: 10}, a, s, &fakePublisher{})

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(a.fetched) != 10 {
		t.Fatalf("fetched %d heights, want batch-bounded 10", len(a.fetched))
	}
	if got := e.LastProcessed(); got != 110 {
		t.Fatalf("cursor = %d, want 110", got)
	}
}

func TestDeriveFromStorageReadsEachCycle(t *testing.T) {
	a := &fakeAdapter{tip: 105}
	s := &fakeStore{max: 100}
	e := newTestEngine(t, Options{CursorMode: DeriveFromStorage, BatchSize: 2}, a, s, &fakePublisher{})

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	assertHeights(t, "first window", a.fetched, []uint64{101, 102})

	// Another writer moved storage forward; the derived cursor must follow.
	s.mu.Lock()
	s.max = 104
	s.mu.Unlock()
	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	assertHeights(t, "second window", a.fetched, []uint64{101, 102, 105})
}

func TestGateBoundsConcurrentWindows(t *testing.T) {
	const capacity = 3
	const tasks = 8

	g := gate.New(capacity)
	var inFlight, maxSeen atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		a := &fakeAdapter{
			tip:       5,
			fetchSlow: 20 * time.Millisecond,
			fetchFn: func(uint64) {
				cur := inFlight.Load()
				for {
					max := maxSeen.Load()
					if cur <= max || maxSeen.CompareAndSwap(max, cur) {
						break
					}
				}
			},
		}
		e := New(Options{
			Network:   "net",
			Topic:     "t",
			Interval:  time.Second,
			BatchSize: 5,
		}, &countingAdapter{inner: a, inFlight: &inFlight}, &fakeStore{}, &fakePublisher{}, g, nil, nil)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.RunOnce(context.Background()); err != nil {
				t.Errorf("cycle: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := maxSeen.Load(); got > capacity {
		t.Fatalf("observed %d concurrent windows, gate capacity is %d", got, capacity)
	}
}

// countingAdapter tracks how many windows are concurrently inside fetch calls.
type countingAdapter struct {
	inner    *fakeAdapter
	inFlight *atomic.Int64
}

func (c *countingAdapter) Runtime() catalog.Runtime { return c.inner.Runtime() }

func (c *countingAdapter) TipHeight(ctx context.Context) (uint64, error) {
	return c.inner.TipHeight(ctx)
}

func (c *countingAdapter) FetchBlock(ctx context.Context, height uint64) (*adapter.NormalizedBlock, error) {
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	return c.inner.FetchBlock(ctx, height)
}

func assertHeights(t *testing.T, what string, got, want []uint64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", what, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s = %v, want %v", what, got, want)
		}
	}
}
