package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/redis/go-redis/v9"

	"keywordintel/common/id"
	"keywordintel/common/logger"
	"keywordintel/common/otel"
	"keywordintel/core/config"
	"keywordintel/core/db"
	"keywordintel/internal/breaker"
	"keywordintel/internal/cache"
	"keywordintel/internal/collector"
	"keywordintel/internal/collector/adapters"
	"keywordintel/internal/enrich"
	"keywordintel/internal/history"
	"keywordintel/internal/mladjuster"
	"keywordintel/internal/normalize"
	"keywordintel/internal/orchestrator"
	"keywordintel/internal/pipeline"
	"keywordintel/internal/queue"
	"keywordintel/internal/ratelimit"
	"keywordintel/internal/session"
	"keywordintel/internal/validator"
	"keywordintel/internal/worker"
)

const maxAttempts = 3

func main() {
	ctx := context.Background()

	cfg := config.Load()

	logger.Setup(cfg)
	slog.InfoContext(ctx, "keywordintel worker starting", "env", cfg.Env)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		slog.ErrorContext(ctx, "failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	if telemetry != nil {
		defer telemetry.Shutdown(ctx) //nolint:errcheck
	}

	if err := id.Init(int64(getEnvInt("WORKER_NODE_ID", 1))); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	redisOpts := &redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "addr", cfg.Redis.Addr)

	orch, err := buildOrchestrator(cfg, redisClient)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	reportStore, err := buildReportStore(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build report store", "error", err)
		os.Exit(1)
	}
	if reportStore != nil {
		slog.InfoContext(ctx, "postgres report archiver enabled")
	}

	stream := queue.StreamName(getEnvStr("KEYWORDINTEL_STREAM_SCOPE", "default"))
	dlqStream := stream + ":dlq"
	group := getEnvStr("KEYWORDINTEL_CONSUMER_GROUP", "keywordintel-workers")

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       stream,
		Group:        group,
		Consumer:     getEnvStr("KEYWORDINTEL_CONSUMER_NAME", "worker-1"),
		DLQStream:    dlqStream,
		BatchSize:    1,
		Block:        5 * time.Second,
		MaxAttempts:  maxAttempts,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	process := newMessageProcessor(consumer, orch, reportStore)

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    stream,
		Group:     group,
		Consumer:  getEnvStr("KEYWORDINTEL_CONSUMER_NAME", "worker-1") + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  time.Minute,
		BatchSize: 10,
	}, consumer, process)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)

	go reclaimer.Run(ctx)
	go runLoop(ctx, &wg, consumer, process)

	slog.InfoContext(ctx, "worker running", "stream", stream)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutdown signal received, initiating graceful shutdown...")
	cancel()

	shutdownComplete := make(chan struct{})
	go func() {
		reclaimer.Stop()
		wg.Wait()
		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		slog.InfoContext(ctx, "graceful shutdown completed")
	case <-time.After(30 * time.Second):
		slog.WarnContext(ctx, "shutdown timeout exceeded, forcing exit")
	}

	if err := redisClient.Close(); err != nil {
		slog.ErrorContext(ctx, "redis close error", "error", err)
	}

	slog.InfoContext(ctx, "shutdown complete")
}

// buildOrchestrator wires the Cache, Rate Limiter, Circuit Breaker, and
// Session Manager components, the collector adapter roster, the
// Normalizer/Validator/Enricher, the optional ML Adjuster backend, the
// Processing Pipeline, and finally the Orchestrator Stage itself.
func buildOrchestrator(cfg config.Config, redisClient *redis.Client) (*orchestrator.Orchestrator, error) {
	l1, err := cache.NewLRUCache(4096)
	if err != nil {
		return nil, fmt.Errorf("building l1 cache: %w", err)
	}
	l2 := cache.NewRedisCache(redisClient, "keywordintel")
	layered := cache.NewLayered(l1, l2)

	limiterDefaults := ratelimit.Config{
		PerMinute: cfg.RateLimit.DefaultPerMinute,
		PerHour:   cfg.RateLimit.DefaultPerHour,
	}
	limiters := ratelimit.NewRegistry(limiterDefaults, nil)

	breakerDefaults := breaker.Config{
		FailureRatio:        cfg.Breaker.FailureRatio,
		MinRequests:         cfg.Breaker.MinRequests,
		OpenTimeout:         cfg.Breaker.OpenTimeout,
		HalfOpenMaxRequests: cfg.Breaker.HalfOpenMaxRequests,
	}
	breakers := breaker.NewRegistry(breakerDefaults)

	runner := collector.NewRunner(layered, limiters, breakers, collector.DefaultRunnerConfig())

	sessCfg := session.Config{
		Timeout:      cfg.Session.Timeout,
		MaxRetries:   cfg.Session.MaxRetries,
		RetryWaitMin: cfg.Session.RetryWaitMin,
		RetryWaitMax: cfg.Session.RetryWaitMax,
	}

	plainSess := session.NewManager("plain", sessCfg)

	bindings := map[string]orchestrator.Binding{
		"google_suggest": {Adapter: adapters.NewGoogleSuggestAdapter(plainSess), Operation: collector.CapExtractSuggestions},
		"google_paa":     {Adapter: adapters.NewGooglePAAAdapter(plainSess), Operation: collector.CapExtractSuggestions},
		"bing_suggest":   {Adapter: adapters.NewBingSuggestAdapter(plainSess), Operation: collector.CapExtractSuggestions},
		"reddit":         {Adapter: adapters.NewRedditAdapter(plainSess), Operation: collector.CapCollectKeywords},
		"youtube":        {Adapter: adapters.NewYouTubeAdapter(plainSess), Operation: collector.CapExtractSuggestions},
	}

	if marketplace := getEnvStr("AMAZON_MARKETPLACE", "amazon.com"); marketplace != "" {
		amazonSess := session.NewManager("amazon", sessCfg)
		bindings["amazon"] = orchestrator.Binding{Adapter: adapters.NewAmazonAdapter(amazonSess, marketplace), Operation: collector.CapExtractMetrics}
	}

	if cfg.Session.GoogleOAuthClientID != "" && cfg.Session.GoogleSearchConsoleSiteURL != "" {
		gscCfg := sessCfg
		gscCfg.OAuth2 = &clientcredentials.Config{
			ClientID:     cfg.Session.GoogleOAuthClientID,
			ClientSecret: cfg.Session.GoogleOAuthClientSecret,
			TokenURL:     cfg.Session.GoogleOAuthTokenURL,
		}
		gscSess := session.NewManager("google_search_console", gscCfg)
		bindings["google_search_console"] = orchestrator.Binding{
			Adapter:   adapters.NewGoogleSearchConsoleAdapter(gscSess, cfg.Session.GoogleSearchConsoleSiteURL),
			Operation: collector.CapExtractMetrics,
		}
	}

	if cfg.Session.InstagramOAuthClientID != "" {
		igCfg := sessCfg
		igCfg.OAuth2 = &clientcredentials.Config{
			ClientID:     cfg.Session.InstagramOAuthClientID,
			ClientSecret: cfg.Session.InstagramOAuthClientSecret,
			TokenURL:     cfg.Session.InstagramOAuthTokenURL,
		}
		igSess := session.NewManager("instagram", igCfg)
		bindings["instagram"] = orchestrator.Binding{Adapter: adapters.NewInstagramAdapter(igSess), Operation: collector.CapCollectKeywords}
	}

	normalizer := normalize.New(normalize.DefaultConfig())

	v := validator.New(validator.DefaultConfig())

	enrichCfg := enrich.DefaultConfig()
	enrichCfg.ConfidenceThreshold = cfg.Enrich.ConfidenceThreshold
	enrichCfg.CacheSize = cfg.Enrich.CacheSize
	enricher, err := enrich.New(enrichCfg)
	if err != nil {
		return nil, fmt.Errorf("building enricher: %w", err)
	}

	adjuster, err := buildAdjuster(cfg)
	if err != nil {
		return nil, fmt.Errorf("building ml adjuster: %w", err)
	}

	handlerNames := []pipeline.HandlerName{
		pipeline.HandlerNormalize,
		pipeline.HandlerClean,
		pipeline.HandlerValidate,
		pipeline.HandlerEnrich,
		pipeline.HandlerML,
		pipeline.HandlerFinalValidate,
	}

	pipe, err := pipeline.New(handlerNames, pipeline.Deps{
		Normalizer: normalizer,
		Validator:  v,
		Enricher:   enricher,
		Adjuster:   adjuster,
	})
	if err != nil {
		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	orchCfg := orchestrator.Config{
		Concurrency:   cfg.Orchestrator.Concurrency,
		StageDeadline: cfg.Orchestrator.StageDeadline,
	}

	return orchestrator.New(runner, bindings, pipe, orchCfg), nil
}

// buildReportStore connects the optional Postgres ValidationReport
// archiver when HISTORY_POSTGRES_DSN is configured. A nil, nil return
// means history archiving is disabled.
func buildReportStore(ctx context.Context, cfg config.Config) (*history.PostgresStore, error) {
	if cfg.History.PostgresDSN == "" {
		return nil, nil
	}

	database, err := db.New(ctx, db.Config{DSN: cfg.History.PostgresDSN, MaxConns: cfg.DB.MaxConns, MinConns: cfg.DB.MinConns})
	if err != nil {
		return nil, fmt.Errorf("connecting to history postgres: %w", err)
	}

	store := history.NewPostgresStore(database)
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrating history postgres: %w", err)
	}

	return store, nil
}

func buildAdjuster(cfg config.Config) (mladjuster.Adjuster, error) {
	switch cfg.MLAdjuster.Backend {
	case "openai":
		return mladjuster.NewOpenAIAdjuster(mladjuster.Config{
			APIKey:  cfg.MLAdjuster.APIKey,
			BaseURL: cfg.MLAdjuster.BaseURL,
			Model:   cfg.MLAdjuster.Model,
		})
	case "anthropic":
		return mladjuster.NewAnthropicAdjuster(mladjuster.Config{
			APIKey:  cfg.MLAdjuster.APIKey,
			BaseURL: cfg.MLAdjuster.BaseURL,
			Model:   cfg.MLAdjuster.Model,
		})
	default:
		return mladjuster.NoopAdjuster{}, nil
	}
}

func runLoop(ctx context.Context, wg *sync.WaitGroup, consumer *queue.RedisConsumer, process queue.MessageProcessor) {
	defer wg.Done()

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "worker.loop"})
	slog.InfoContext(ctx, "worker loop started")

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "worker loop stopping")
			return
		default:
			messages, err := consumer.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.ErrorContext(ctx, "failed to read from stream", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for _, msg := range messages {
				if ctx.Err() != nil {
					slog.InfoContext(ctx, "shutdown requested, stopping message processing")
					return
				}

				msgCtx := logger.WithLogFields(ctx, logger.LogFields{
					RunID:     logger.Ptr(msg.RunID),
					Component: "worker.processor",
				})

				if err := processMessageSafe(msgCtx, msg, process); err != nil {
					slog.ErrorContext(msgCtx, "message processing failed", "error", err)
					handleFailure(msgCtx, consumer, msg, err)
				}
			}
		}
	}
}

func processMessageSafe(ctx context.Context, msg queue.Message, process queue.MessageProcessor) (err error) {
	start := time.Now()

	defer func() {
		duration := time.Since(start)
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "panic recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
				"duration_ms", duration.Milliseconds())
			err = fmt.Errorf("panic: %v", rec)
			return
		}
		if err == nil {
			slog.InfoContext(ctx, "message processed successfully", "duration_ms", duration.Milliseconds())
		}
	}()

	return process(ctx, msg)
}

func newMessageProcessor(consumer *queue.RedisConsumer, orch *orchestrator.Orchestrator, reportStore *history.PostgresStore) queue.MessageProcessor {
	return func(ctx context.Context, msg queue.Message) error {
		slog.InfoContext(ctx, "processing submission", "term", msg.Term, "attempt", msg.Attempt)

		withReport := msg.WithReport || reportStore != nil
		result, err := orch.Run(ctx, orchestrator.Request{
			RunID:      msg.RunID,
			Term:       msg.Term,
			Providers:  msg.Providers,
			WithReport: withReport,
		})
		if err != nil {
			return err
		}

		slog.InfoContext(ctx, "submission processed",
			"candidate_count", len(result.Candidates),
			"degraded", result.Degraded,
			"duration_ms", result.DurationMS)

		if reportStore != nil && result.Report != nil && result.Report.ValidationReport != nil {
			if err := reportStore.SaveReport(ctx, *result.Report.ValidationReport); err != nil {
				slog.ErrorContext(ctx, "failed to archive validation report", "error", err)
			}
		}

		return consumer.Ack(ctx, msg)
	}
}

func handleFailure(ctx context.Context, consumer *queue.RedisConsumer, msg queue.Message, err error) {
	willDLQ := msg.Attempt >= maxAttempts

	slog.InfoContext(ctx, "handling message failure",
		"error", err,
		"attempt", msg.Attempt,
		"max_attempts", maxAttempts,
		"will_dlq", willDLQ)

	if willDLQ {
		if dlqErr := consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	if requeueErr := consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue", "error", requeueErr)
	}
}

func getEnvStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
