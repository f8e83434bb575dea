package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/conversation-orchestrator/internal/api/http"
	"github.com/spec-kit/conversation-orchestrator/internal/api/http/handlers"
	"github.com/spec-kit/conversation-orchestrator/internal/config"
	"github.com/spec-kit/conversation-orchestrator/internal/events"
	"github.com/spec-kit/conversation-orchestrator/internal/fsm"
	"github.com/spec-kit/conversation-orchestrator/internal/observability"
	"github.com/spec-kit/conversation-orchestrator/internal/orchestrator"
	"github.com/spec-kit/conversation-orchestrator/internal/persistence"
	"github.com/spec-kit/conversation-orchestrator/internal/policy"
	"github.com/spec-kit/conversation-orchestrator/internal/repository"
	"github.com/spec-kit/conversation-orchestrator/internal/responder"
	"github.com/spec-kit/conversation-orchestrator/internal/routing"
	"github.com/spec-kit/conversation-orchestrator/internal/service"
	"github.com/spec-kit/conversation-orchestrator/internal/sla"
	"github.com/spec-kit/conversation-orchestrator/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	store := repository.NewStore(pg.PoolHandle())
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	catalog := routing.NewRedisCatalog(store.Repos().Queues, redis.Client, cfg.Routing.CatalogTTL(), logger)
	router := routing.NewRouter(catalog, logger)
	engine := policy.NewEngine(store.Repos().Rules, logger)
	tracker := sla.NewTracker(store, time.Now, cfg.SLA.RiskWindow(), logger)
	scheduler := worker.NewRedisScheduler(redis.Client, cfg.Responder.JobQueueKey)

	orch := orchestrator.New(orchestrator.Dependencies{
		Store:      store,
		Machine:    fsm.NewMachine(),
		Router:     router,
		Dispatcher: dispatcher,
		Jobs:       scheduler,
		Metrics:    metrics,
		Logger:     logger,
		SLATargets: sla.TableFromConfig(cfg.SLA),
	})

	conversationService := service.NewConversationService(store, logger, time.Now)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	automation := worker.NewAutomationWorker(worker.AutomationWorkerDeps{
		Client:     redis.Client,
		JobKey:     cfg.Responder.JobQueueKey,
		Orch:       orch,
		Backend:    responder.NewAnthropicBackend(cfg.Responder),
		Engine:     engine,
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	go automation.Run(ctx)

	go runSLASweeper(ctx, tracker, cfg.SLA, logger)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:        handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Conversations: handlers.NewConversationsHandler(conversationService, orch),
		Decisions:     handlers.NewDecisionsHandler(engine, conversationService),
		Routing:       handlers.NewRoutingHandler(router, catalog, conversationService),
		SLA:           handlers.NewSLAHandler(tracker),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	_ = app.Shutdown()
}

func runSLASweeper(ctx context.Context, tracker *sla.Tracker, cfg config.SLAConfig, logger *zap.Logger) {
	interval := time.Duration(cfg.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flagged, err := tracker.UpdateSLABreaches(ctx)
			if err != nil {
				logger.Error("sla sweep failed", zap.Error(err))
				continue
			}
			if flagged > 0 {
				logger.Info("sla sweep flagged breaches", zap.Int("count", flagged))
			}
		}
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
