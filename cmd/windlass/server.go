package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/windlass/windlass/pkg/api"
	"github.com/windlass/windlass/pkg/bluegreen"
	"github.com/windlass/windlass/pkg/builder"
	"github.com/windlass/windlass/pkg/config"
	"github.com/windlass/windlass/pkg/deploy"
	"github.com/windlass/windlass/pkg/health"
	"github.com/windlass/windlass/pkg/log"
	"github.com/windlass/windlass/pkg/metrics"
	"github.com/windlass/windlass/pkg/metricsvc"
	"github.com/windlass/windlass/pkg/notify"
	"github.com/windlass/windlass/pkg/orchestrator"
	"github.com/windlass/windlass/pkg/queue"
	"github.com/windlass/windlass/pkg/reconciler"
	"github.com/windlass/windlass/pkg/rollback"
	"github.com/windlass/windlass/pkg/rollout"
	"github.com/windlass/windlass/pkg/storage"
	"github.com/windlass/windlass/pkg/types"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the Windlass server",
	Long: `Run the Windlass server: the HTTP API, the build worker pool,
and the deployment reconciliation loop, all in one process.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().StringP("config", "c", "", "Path to YAML config file")
}

func runServer(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
		Output:     os.Stderr,
	})
	logger := log.WithComponent("server")
	metrics.SetVersion(Version)

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()
	metrics.RegisterComponent("store", true, "")

	buildQueue, err := queue.NewQueue(cfg.DataDir,
		queue.WithLease(cfg.Build.QueueLease),
		queue.WithPollInterval(cfg.Build.PollInterval),
	)
	if err != nil {
		return err
	}
	defer buildQueue.Close()
	metrics.RegisterComponent("queue", true, "")

	broker := notify.NewBroker()
	broker.Start()
	defer broker.Stop()
	notifier := notify.Multi{broker}
	if cfg.WebhookURL != "" {
		notifier = append(notifier, notify.NewWebhookSink(cfg.WebhookURL))
	}

	orch := orchestrator.NewHTTPClient(cfg.OrchestratorURL)

	var metricSvc metricsvc.Service
	promSvc, err := metricsvc.NewPrometheusService(cfg.PrometheusAddr)
	if err != nil {
		return err
	}
	metricSvc = promSvc
	evaluator := health.NewEvaluator(metricSvc, health.Thresholds{
		MaxErrorRate:    cfg.Health.MaxErrorRate,
		MinSuccessRate:  cfg.Health.MinSuccessRate,
		MaxAvgLatencyMs: cfg.Health.MaxAvgLatencyMs,
	})

	recon := reconciler.New(store, orch, notifier, cfg.Reconcile.Interval)
	if err := recon.Start(); err != nil {
		return err
	}
	defer recon.Stop()
	metrics.RegisterComponent("reconciler", true, "")

	toolchain := builder.NewHTTPToolchain(cfg.BuildAgentURL)
	builds := builder.NewService(store, buildQueue, toolchain, notifier, cfg.Build.Workers)
	builds.Start()
	defer builds.Stop()

	deploys := deploy.NewService(store, orch, notifier, recon)

	sched := rollout.NewScheduler()
	engine := rollout.NewEngine(store, orch, evaluator, sched, rollout.Params{
		Rolling: cfg.Rolling,
		Canary: types.CanaryConfig{
			Steps:           cfg.Canary.Steps,
			ObservationTime: cfg.Canary.ObservationTime,
			AutoPromote:     cfg.Canary.AutoPromote,
			RollbackOnError: cfg.Canary.RollbackOnError,
		},
	})
	defer engine.Stop()

	bgManager := bluegreen.NewManager(store, orch, evaluator, sched, notifier)
	rollbacks := rollback.NewCoordinator(store, orch, notifier, recon)

	server := api.NewServer(cfg.ListenAddr, store, builds, deploys, rollbacks, bgManager, engine, broker)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
