// The engine binary runs the investigation core: it wires the provider
// gateway, the SAR investigation pipeline, entity resolution, screening,
// lifecycle processing and the monitoring scheduler over Postgres and Redis,
// and serves Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/compliance"
	monitordomain "github.com/clearvet/screening-backend/internal/domain/monitoring"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	screeningdomain "github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/infrastructure/cache"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/infrastructure/database"
	"github.com/clearvet/screening-backend/internal/infrastructure/gateway"
	"github.com/clearvet/screening-backend/internal/infrastructure/metrics"
	"github.com/clearvet/screening-backend/internal/infrastructure/queue"
	"github.com/clearvet/screening-backend/internal/infrastructure/telemetry"
	"github.com/clearvet/screening-backend/internal/service/assessment"
	"github.com/clearvet/screening-backend/internal/service/entityres"
	"github.com/clearvet/screening-backend/internal/service/investigation"
	"github.com/clearvet/screening-backend/internal/service/lifecycle"
	"github.com/clearvet/screening-backend/internal/service/monitoring"
	"github.com/clearvet/screening-backend/internal/service/notify"
	"github.com/clearvet/screening-backend/internal/service/planner"
	"github.com/clearvet/screening-backend/internal/service/risk"
	"github.com/clearvet/screening-backend/internal/service/screening"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parsing redis URL: %w", err)
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	redisOpts.DB = cfg.Redis.DB
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}

	auditLog := audit.NewLogger(database.NewAuditStore(pool), logger)
	evaluator := compliance.NewEvaluator(database.NewRuleRepository(pool), logger)

	providers := make([]gateway.Provider, 0, len(cfg.Providers))
	sources := make([]planner.DataSource, 0, len(cfg.Providers))
	for id, limit := range cfg.Providers {
		providers = append(providers, gateway.NewHTTPProvider(id, limit))
		sources = append(sources, dataSource(id, limit))
	}

	gw := gateway.New(cfg, providers,
		cache.NewRedisStore(redisClient, logger, cfg.Cache.KeyPrefix),
		cache.NewRedisWindowCounter(redisClient, logger),
		auditLog, logger, m)

	queryPlanner := planner.New(planner.NewStaticResolver(sources), logger)
	sar := investigation.NewSARController(cfg.Investigation, queryPlanner, assessment.New(logger), gw, auditLog, logger, m)
	orchestrator := investigation.NewOrchestrator(sar, cfg.Investigation, logger)
	riskPipeline := risk.NewPipeline(auditLog, logger)

	entities := database.NewEntityRepository(pool)
	resolver := entityres.NewResolver(entities, auditLog, logger)
	profiles := database.NewProfileRepository(pool)
	monitorConfigs := database.NewMonitoringRepository(pool)

	alerts := notify.NewDispatcher(&notify.LogNotifier{Logger: logger}, 3, time.Second, logger)

	// The screening service enrolls completed baselines into monitoring and
	// the monitoring executor versions profiles through the screening
	// service. The handle breaks that construction cycle.
	enroller := &enrollerHandle{}
	screeningSvc := screening.NewService(cfg.Investigation, evaluator, resolver, orchestrator,
		riskPipeline, profiles, database.NewStateRepository(pool), enroller, alerts, auditLog, logger, m)

	executor := monitoring.NewRecheckExecutor(monitorConfigs, entities, evaluator,
		orchestrator, riskPipeline, screeningSvc, logger)
	scheduler := monitoring.NewScheduler(cfg.Monitoring, monitorConfigs, profiles, executor, auditLog, alerts, logger, m)
	enroller.scheduler = scheduler

	lifecycleStore := database.NewLifecycleRepository(pool)
	processor := lifecycle.NewProcessor(screeningSvc, scheduler, lifecycleStore, lifecycleStore, auditLog, logger)
	consumer := lifecycle.NewConsumer(
		queue.NewRedisQueue(redisClient, cfg.Lifecycle.QueueKey, cfg.Lifecycle.PollTimeout),
		processor, logger)

	logger.Info("engine starting",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.Int("providers", len(providers)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := scheduler.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := consumer.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return serveMetrics(gctx, cfg.MetricsAddr, registry, logger)
	})

	err = g.Wait()
	logger.Info("engine stopped")
	return err
}

// enrollerHandle defers the scheduler binding until wiring completes
type enrollerHandle struct {
	scheduler *monitoring.Scheduler
}

func (h *enrollerHandle) Enroll(ctx context.Context, rctx values.RequestContext, role screeningdomain.RoleCategory, baseline *profile.Profile) (*monitordomain.Config, error) {
	if h.scheduler == nil {
		return nil, nil
	}
	return h.scheduler.Enroll(ctx, rctx, role, baseline)
}

func dataSource(id string, limit config.ProviderLimit) planner.DataSource {
	checks := make([]screeningdomain.InformationType, 0, len(limit.Checks))
	for _, c := range limit.Checks {
		checks = append(checks, screeningdomain.InformationType(c))
	}
	tiers := make([]screeningdomain.Tier, 0, len(limit.Tiers))
	for _, t := range limit.Tiers {
		tiers = append(tiers, screeningdomain.Tier(t))
	}
	return planner.DataSource{
		ProviderID:    id,
		CheckTypes:    checks,
		Tiers:         tiers,
		Jurisdictions: limit.Jurisdictions,
		Priority:      limit.Priority,
	}
}

func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("metrics server failed", zap.Error(err))
		return err
	}
}
