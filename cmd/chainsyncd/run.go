package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/devblac/chainsyncd/internal/catalog"
	"github.com/devblac/chainsyncd/internal/config"
	"github.com/devblac/chainsyncd/internal/engine"
	"github.com/devblac/chainsyncd/internal/health"
	"github.com/devblac/chainsyncd/internal/logging"
	"github.com/devblac/chainsyncd/internal/metrics"
	"github.com/devblac/chainsyncd/internal/publish"
	"github.com/devblac/chainsyncd/internal/storage"
)

var (
	flagOnce    bool
	flagDryRun  bool
	flagHealth  string
	flagMetrics string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Process one cycle per network and exit")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Persist blocks but do not publish downstream")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run sync tasks for all scheduled networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel := os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			logLevel = "info"
		}
		log := logging.NewWithLevel(logLevel)
		ctx := cmd.Context()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		cat, err := catalog.Load(cfg.Global.NetworksFile)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}

		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		var publisher publish.Publisher = publish.NopPublisher{}
		switch {
		case flagDryRun:
			log.Info("dry run, publishing disabled")
		case cfg.Global.PublishURL == "":
			log.Warn("no publish_url configured, publishing disabled")
		default:
			publisher, err = publish.NewWebhookPublisher(cfg.Global.PublishURL, nil)
			if err != nil {
				return fmt.Errorf("build publisher: %w", err)
			}
		}

		mtr := metrics.Init()
		orch, scheduled := engine.NewOrchestrator(cfg, cat, store, publisher, log, mtr)
		if len(scheduled) == 0 {
			return fmt.Errorf("no networks scheduled; check enabled flags, priorities, and RPC endpoints")
		}
		for _, s := range scheduled {
			log.Info("network scheduled", "network", s.Key, "runtime", string(s.Runtime), "priority", s.Priority, "ecosystem", s.Ecosystem)
		}

		if flagHealth != "" {
			rpcChecker := health.NewRPCChecker(orch.Adapters())
			healthSrv := health.Serve(flagHealth, health.Checker{
				DBPing:  store.Ping,
				RPCPing: rpcChecker.Ping,
			})
			log.Info("health check enabled", "addr", flagHealth)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, healthSrv)
			}()
		}

		if flagMetrics != "" {
			log.Info("metrics enabled", "addr", flagMetrics)
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				srv := &http.Server{Addr: flagMetrics, Handler: mux}
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "error", err)
				}
			}()
		}

		if flagOnce {
			return orch.RunOnce(ctx)
		}

		err = orch.Run(ctx)
		if err != nil && ctx.Err() != nil {
			log.Info("shutdown complete")
			return nil
		}
		return err
	},
}
