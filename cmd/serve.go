package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tphagent/marketing-engine/internal/analysis"
	"github.com/tphagent/marketing-engine/internal/analyzer"
	"github.com/tphagent/marketing-engine/internal/api"
	"github.com/tphagent/marketing-engine/internal/archive"
	archivepg "github.com/tphagent/marketing-engine/internal/archive/postgres"
	"github.com/tphagent/marketing-engine/internal/cache"
	"github.com/tphagent/marketing-engine/internal/clock/system"
	"github.com/tphagent/marketing-engine/internal/config"
	collyfetcher "github.com/tphagent/marketing-engine/internal/fetcher/colly"
	"github.com/tphagent/marketing-engine/internal/id/uuid"
	"github.com/tphagent/marketing-engine/internal/logging"
	"github.com/tphagent/marketing-engine/internal/manager"
	"github.com/tphagent/marketing-engine/internal/metrics"
	"github.com/tphagent/marketing-engine/internal/policy/ratelimit"
	"github.com/tphagent/marketing-engine/internal/progress"
	"github.com/tphagent/marketing-engine/internal/progress/sinks"
	memorypublisher "github.com/tphagent/marketing-engine/internal/publisher/memory"
	pubsubpublisher "github.com/tphagent/marketing-engine/internal/publisher/pubsub"
	queuememory "github.com/tphagent/marketing-engine/internal/queue/memory"
	statusmemory "github.com/tphagent/marketing-engine/internal/status/memory"
	"github.com/tphagent/marketing-engine/internal/strategy"
	"github.com/tphagent/marketing-engine/internal/worker"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the analysis HTTP service",
		Long: `Starts the asynchronous analysis service: accepts submissions over
HTTP, runs them on a bounded worker pool, and serves status to polling
clients until shut down with SIGINT or SIGTERM.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	statusStore := statusmemory.NewStore()
	queue := queuememory.NewQueue(cfg.Pool.QueueDepth)
	clock := system.New()

	var archiveRepo archive.Repository
	if cfg.DB.DSN != "" {
		pgStore, err := archivepg.NewStore(ctx, archivepg.StoreConfig{DSN: cfg.DB.DSN})
		if err != nil {
			return fmt.Errorf("init archive store: %w", err)
		}
		defer pgStore.Close()
		archiveRepo = pgStore
	}

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("init prometheus sink: %w", err)
	}
	hubSinks := []progress.Sink{
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	}
	if archiveRepo != nil {
		hubSinks = append(hubSinks, sinks.NewArchiveSink(archiveRepo, logger.Named("archive")))
	}
	hub := progress.NewHub(progress.Config{
		BaseContext: ctx,
		Logger:      logger.Named("progress"),
	}, hubSinks...)

	publisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.PerHostRPS,
		DefaultBurst: cfg.HTTP.PerHostBurst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		Timeout:        cfg.FetchTimeout(),
		MaxRetries:     cfg.HTTP.MaxRetries,
		BackoffInitial: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
	}, limiter)

	siteAnalyzer := analyzer.New(fetcher, cache.New(cfg.Cache.Capacity, cfg.CacheTTL()), logger)
	synthesizer := buildSynthesizer(cfg, logger)

	mgr := manager.New(statusStore, queue, uuid.New(), clock, hub, logger)

	dispatcher := worker.NewDispatcher(cfg.Pool.Workers, func() *worker.Worker {
		return worker.New(
			queue,
			mgr,
			siteAnalyzer,
			synthesizer,
			publisher,
			archiveRepo,
			clock,
			hub,
			worker.Config{JobBudget: cfg.JobBudget()},
			logger.Named("worker"),
		)
	}, logger)

	apiServer := api.NewServer(mgr, clock, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go dispatcher.Run(ctx)

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

// buildSynthesizer picks the strategy provider from config. The LLM provider
// already falls back to the rules engine internally on API failures.
func buildSynthesizer(cfg config.Config, logger *zap.Logger) analysis.Synthesizer {
	if cfg.Strategy.Provider == "llm" {
		return strategy.NewLLM(strategy.LLMConfig{
			APIKey:    cfg.Strategy.AnthropicAPIKey,
			Model:     cfg.Strategy.AnthropicModel,
			MaxTokens: int64(cfg.Strategy.MaxTokens),
			Timeout:   time.Duration(cfg.Strategy.TimeoutSeconds) * time.Second,
		}, logger)
	}
	return strategy.NewRules(logger)
}

// buildPublisher returns the Pub/Sub publisher when configured, otherwise an
// in-memory one.
func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (analysis.Publisher, error) {
	if !cfg.PubSub.Enabled() {
		return memorypublisher.New(), nil
	}
	client, err := pubsubv2.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	logger.Info("result publishing enabled",
		zap.String("project", cfg.PubSub.ProjectID),
		zap.String("topic", cfg.PubSub.Topic),
	)
	return pubsubpublisher.New(client.Publisher(cfg.PubSub.Topic)), nil
}
