package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devblac/chainsyncd/internal/adapter"
	"github.com/devblac/chainsyncd/internal/adapter/cosmos"
	"github.com/devblac/chainsyncd/internal/adapter/evm"
	"github.com/devblac/chainsyncd/internal/adapter/stub"
	"github.com/devblac/chainsyncd/internal/adapter/substrate"
	"github.com/devblac/chainsyncd/internal/catalog"
	"github.com/devblac/chainsyncd/internal/config"
	"github.com/devblac/chainsyncd/internal/gate"
	"github.com/devblac/chainsyncd/internal/metrics"
	"github.com/devblac/chainsyncd/internal/publish"
	"github.com/devblac/chainsyncd/internal/storage"
)

const retentionSweepInterval = 24 * time.Hour

// Orchestrator reads the catalog, filters networks per ecosystem policy, and
// runs one sync engine task per qualifying network. Networks in one ecosystem
// share an admission gate; ecosystems are independent.
type Orchestrator struct {
	cfg       *config.Config
	catalog   *catalog.Catalog
	store     *storage.Store
	publisher publish.Publisher
	log       *slog.Logger
	mtr       *metrics.Metrics

	engines  []*Engine
	adapters map[string]adapter.Adapter
}

// ScheduledNetwork describes one engine task for reporting.
type ScheduledNetwork struct {
	Key       string
	Runtime   catalog.Runtime
	Priority  int
	Endpoint  string
	Ecosystem string
}

// NewOrchestrator wires engines for every enabled, priority-qualifying
// network with a resolvable endpoint and a real adapter. Skipped networks are
// logged, never fatal.
func NewOrchestrator(cfg *config.Config, cat *catalog.Catalog, store *storage.Store, pub publish.Publisher, log *slog.Logger, mtr *metrics.Metrics) (*Orchestrator, []ScheduledNetwork) {
	o := &Orchestrator{
		cfg:       cfg,
		catalog:   cat,
		store:     store,
		publisher: pub,
		log:       log,
		mtr:       mtr,
		adapters:  map[string]adapter.Adapter{},
	}

	var scheduled []ScheduledNetwork
	for _, name := range sortedEcosystems(cfg.Ecosystems) {
		eco := cfg.Ecosystems[name]
		if !eco.SyncEnabled {
			continue
		}
		runtime, ok := config.RuntimeFor(name)
		if !ok {
			continue
		}

		g := gate.New(eco.MaxConcurrentRequests)
		for _, key := range eco.Networks {
			desc, found := cat.Get(key)
			if !found {
				log.Warn("network not in catalog, skipping", "network", key, "ecosystem", name)
				continue
			}
			if desc.Runtime != runtime {
				log.Warn("network runtime does not match ecosystem, skipping", "network", key, "ecosystem", name, "runtime", desc.Runtime)
				continue
			}
			if !desc.Enabled {
				log.Info("network disabled, skipping", "network", key)
				continue
			}
			if desc.Priority < eco.PriorityThreshold {
				log.Info("network below priority threshold, skipping", "network", key, "priority", desc.Priority, "threshold", eco.PriorityThreshold)
				continue
			}
			endpoint := desc.ResolveEndpoint()
			if endpoint == "" {
				log.Warn("no RPC endpoint resolved, skipping", "network", key, "env_override", desc.EnvKey())
				continue
			}

			a, err := buildAdapter(desc, endpoint, eco.RequestTimeout())
			if err != nil {
				log.Warn("adapter construction failed, skipping", "network", key, "error", err)
				continue
			}
			if _, isStub := a.(*stub.Adapter); isStub {
				log.Info("runtime not yet syncable, skipping", "network", key, "runtime", desc.Runtime)
				continue
			}

			eng := New(Options{
				Network:         key,
				Topic:           topicFor(name),
				Interval:        eco.SyncInterval(),
				BatchSize:       uint64(eco.BatchSize),
				CursorMode:      cursorModeFor(runtime),
				WarmStartWindow: eco.WarmStartWindow,
			}, a, store, pub, g, log, mtr)

			o.engines = append(o.engines, eng)
			o.adapters[key] = a
			scheduled = append(scheduled, ScheduledNetwork{
				Key:       key,
				Runtime:   desc.Runtime,
				Priority:  desc.Priority,
				Endpoint:  endpoint,
				Ecosystem: name,
			})
		}
	}

	return o, scheduled
}

// Adapters returns the adapters of all scheduled networks, keyed by network,
// for health checking.
func (o *Orchestrator) Adapters() map[string]adapter.Adapter { return o.adapters }

// Run starts every engine task plus the retention sweeper and blocks until
// ctx is cancelled. Individual task failures never propagate across networks;
// the only error returned is ctx cancellation.
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.engines) == 0 {
		return fmt.Errorf("no networks scheduled")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, eng := range o.engines {
		eng := eng
		g.Go(func() error {
			return eng.Run(ctx)
		})
	}
	g.Go(func() error {
		return o.retentionLoop(ctx)
	})
	return g.Wait()
}

// RunOnce executes a single cycle per scheduled network, sequentially, for
// the --once flag.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	for _, eng := range o.engines {
		if err := eng.RunOnce(ctx); err != nil {
			o.log.Error("cycle failed", "network", eng.opts.Network, "error", err)
		}
	}
	return nil
}

// retentionLoop prunes rows past each ecosystem's retention window, once at
// startup and then daily. Cleanup runs outside the sync cycles.
func (o *Orchestrator) retentionLoop(ctx context.Context) error {
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		o.sweepRetention(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) sweepRetention(ctx context.Context) {
	for name, eco := range o.cfg.Ecosystems {
		if !eco.SyncEnabled || eco.RetentionDays <= 0 {
			continue
		}
		for _, key := range eco.Networks {
			n, err := o.store.DeleteOlderThan(ctx, key, eco.RetentionDays)
			if err != nil {
				o.log.Warn("retention cleanup failed", "network", key, "error", err)
				continue
			}
			if n > 0 {
				o.log.Info("retention cleanup", "ecosystem", name, "network", key, "rows_deleted", n)
			}
		}
	}
}

func buildAdapter(desc catalog.Descriptor, endpoint string, timeout time.Duration) (adapter.Adapter, error) {
	switch desc.Runtime {
	case catalog.RuntimeEVM:
		client, err := evm.NewRPCClient(endpoint)
		if err != nil {
			return nil, err
		}
		return evm.New(desc.Key, client, timeout), nil
	case catalog.RuntimeCosmos:
		return cosmos.New(desc.Key, endpoint, timeout), nil
	case catalog.RuntimeSubstrate:
		return substrate.New(desc.Key, endpoint, timeout), nil
	case catalog.RuntimeBitcoin, catalog.RuntimeSolana, catalog.RuntimeMoveVM, catalog.RuntimeStarknet:
		// Known in the catalog but not decodable yet; reported, never synced.
		return stub.New(desc.Runtime), nil
	default:
		return nil, fmt.Errorf("%w: %s", adapter.ErrUnsupported, desc.Runtime)
	}
}

// cursorModeFor keeps the per-family cursor strategy explicit: EVM and
// Substrate track in memory after a single seed, Cosmos re-derives from
// storage each cycle.
func cursorModeFor(rt catalog.Runtime) CursorMode {
	if rt == catalog.RuntimeCosmos {
		return DeriveFromStorage
	}
	return TrackInMemory
}

func topicFor(ecosystem string) string {
	return ecosystem + "_blockchain_data"
}

func sortedEcosystems(m map[string]config.Ecosystem) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
