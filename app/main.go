package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/lysyi3m/bankwatch/app/api"
	"github.com/lysyi3m/bankwatch/app/cache"
	"github.com/lysyi3m/bankwatch/app/cfg"
	"github.com/lysyi3m/bankwatch/app/coverage"
	"github.com/lysyi3m/bankwatch/app/database"
	"github.com/lysyi3m/bankwatch/app/dedup"
	"github.com/lysyi3m/bankwatch/app/enrich"
	"github.com/lysyi3m/bankwatch/app/fanout"
	"github.com/lysyi3m/bankwatch/app/llm"
	"github.com/lysyi3m/bankwatch/app/monitor"
	"github.com/lysyi3m/bankwatch/app/notify"
	"github.com/lysyi3m/bankwatch/app/producer"
	"github.com/lysyi3m/bankwatch/app/registry"
	"github.com/lysyi3m/bankwatch/app/service"
	"github.com/lysyi3m/bankwatch/app/tasks"
)

const (
	enrichmentCacheSize = 1_000_000
	httpClientTimeout   = 30 * time.Second
)

func main() {
	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded environment from .env")
	}

	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting bankwatch", "version", appCfg.Version)

	db, err := database.Open(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	reg := registry.New(appCfg.EntitiesFile, appCfg.SourcesDir)
	if err := reg.Run(); err != nil {
		slog.Error("Failed to load registry", "error", err)
		os.Exit(1)
	}

	rawItems := database.NewItemRepository(db)
	enrichedItems := database.NewEnrichedRepository(db)
	subscriptions := database.NewSubscriptionRepository(db)
	tracker := coverage.NewTracker(database.NewCoverageRepository(db))

	var redisClient *redis.Client
	if appCfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		redisClient, err = cache.NewRedisClient(ctx, appCfg.RedisAddr)
		cancel()
		if err != nil {
			slog.Warn("Redis unavailable, using in-process caches", "addr", appCfg.RedisAddr, "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var responses cache.Store[string]
	var verdicts cache.Store[bool]
	if redisClient != nil {
		responses = cache.NewRedisStore[string](redisClient, "bankwatch:llm", appCfg.CacheTTL)
		verdicts = cache.NewRedisStore[bool](redisClient, "bankwatch:judge", appCfg.CacheTTL)
	} else {
		responses = cache.NewTTLCache[string](appCfg.CacheTTL, enrichmentCacheSize)
		verdicts = cache.NewTTLCache[bool](appCfg.CacheTTL, dedup.JudgmentCacheSize)
	}

	completer, err := llm.New(llm.Config{
		Provider: appCfg.LLMProvider,
		APIKey:   appCfg.LLMAPIKey,
		Model:    appCfg.LLMModel,
		BaseURL:  appCfg.LLMBaseURL,
	})
	if err != nil {
		slog.Error("Failed to create enrichment backend", "provider", appCfg.LLMProvider, "error", err)
		os.Exit(1)
	}
	slog.Info("Enrichment backend configured", "provider", appCfg.LLMProvider, "model", completer.Model())

	budget := enrich.NewBudget(appCfg.BudgetInitial, appCfg.BudgetFloor, appCfg.BudgetCeiling)
	classifier := enrich.NewClient(completer, responses, budget, enrich.DefaultRetryPolicy(appCfg.LLMMaxAttempts), appCfg.LLMTimeout)
	analyzer := enrich.NewAnalyzer(classifier)
	engine := dedup.NewEngine(enrich.NewJudge(classifier), verdicts, appCfg.PairConcurrency)

	httpClient := &http.Client{Timeout: httpClientTimeout}
	buildProducers := func() []producer.Producer {
		return producer.Build(reg.GetEnabledSources(), httpClient, appCfg.UserAgent, appCfg.NewsAPIKey)
	}
	coordinator := fanout.NewCoordinator(buildProducers(), tracker, rawItems, appCfg.ProducerTimeout, appCfg.Freshness)
	slog.Info("Producers configured", "count", coordinator.ProducerCount())

	newsService := service.NewNewsService(reg, coordinator, rawItems, enrichedItems, analyzer, engine)

	taskScheduler := tasks.NewScheduler(appCfg.WorkerCount, appCfg.SyncInterval, func() tasks.TaskInterface {
		return tasks.NewSyncRegistryTask(reg, func() {
			coordinator.SetProducers(buildProducers())
		})
	})
	taskScheduler.Start()
	defer taskScheduler.Stop()

	apiHandler := api.NewHandler(reg, tracker, enrichedItems, subscriptions, newsService, taskScheduler,
		appCfg.BaseUrl, appCfg.Version).WithBudget(budget)
	if redisClient != nil {
		apiHandler.WithCacheHealth(func(ctx context.Context) map[string]interface{} {
			return cache.Health(ctx, redisClient)
		})
	}

	if appCfg.MonitorEnabled {
		var notifier monitor.Notifier = notify.LogNotifier{}
		if appCfg.TelegramBotToken != "" {
			notifier = notify.NewTelegram(httpClient, "", appCfg.TelegramBotToken)
		} else {
			slog.Warn("TELEGRAM_BOT_TOKEN not set, digests will only be logged")
		}

		monitorScheduler := monitor.NewScheduler(monitor.Config{
			Hours:        appCfg.CheckpointHours,
			Location:     appCfg.MonitorLocation,
			Window:       appCfg.MonitorWindow,
			BatchSize:    appCfg.MonitorBatchSize,
			Parallel:     appCfg.MonitorParallel,
			EntityDelay:  appCfg.EntityDelay,
			BatchDelay:   appCfg.BatchDelay,
			ActiveWindow: appCfg.ActiveWindow,
		}, reg, subscriptions, rawItems, enrichedItems, coordinator, analyzer, engine, notifier, nil).
			WithPassResetters(classifier, coordinator)
		monitorScheduler.Start()
		defer monitorScheduler.Stop()

		apiHandler.WithMonitor(monitorScheduler)
		slog.Info("Monitoring enabled", "checkpoints", appCfg.CheckpointHours, "timezone", appCfg.MonitorLocation.String())
	}

	server := api.NewServer(apiHandler, appCfg.APIAccessKey, appCfg.CORSOrigins)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port, "entities", reg.GetEntityCount(), "sources", reg.GetSourceCount())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
