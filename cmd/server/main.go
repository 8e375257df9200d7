package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/weison-t/thereader/internal/ai"
	"github.com/weison-t/thereader/internal/cache"
	"github.com/weison-t/thereader/internal/config"
	"github.com/weison-t/thereader/internal/db"
	httpapi "github.com/weison-t/thereader/internal/http"
	"github.com/weison-t/thereader/internal/http/handlers"
	"github.com/weison-t/thereader/internal/metrics"
	"github.com/weison-t/thereader/internal/retry"
	"github.com/weison-t/thereader/internal/scoring"
	"github.com/weison-t/thereader/internal/secret"
	"github.com/weison-t/thereader/internal/service"
	"github.com/weison-t/thereader/internal/storage"
)

const mockModelVersion = "mock-v1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "thereader").Str("env", cfg.Env).Logger()

	metrics.Init()

	ctx := context.Background()
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	var objects storage.ObjectStore
	if cfg.StorageEndpoint == "" {
		objects = storage.NewMemoryStore()
		logger.Warn().Msg("STORAGE_ENDPOINT not set, uploads are kept in memory")
	} else {
		objects, err = storage.NewMinioStore(ctx, storage.MinioOptions{
			Endpoint:  cfg.StorageEndpoint,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			UseSSL:    cfg.StorageUseSSL,
			Region:    cfg.StorageRegion,
			Bucket:    cfg.StorageBucket,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect object storage")
		}
	}

	var insightsCache cache.Cache
	if cfg.RedisAddr == "" {
		insightsCache = cache.NewMemoryCache(cfg.InsightsCacheTTL)
	} else {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rc.Close()
		insightsCache = rc
	}

	var box *secret.Box
	if cfg.EncryptionKey != "" {
		box, err = secret.New(cfg.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid CONFIG_ENCRYPTION_KEY")
		}
	} else {
		logger.Warn().Msg("CONFIG_ENCRYPTION_KEY not set, stored API keys cannot be used")
	}

	retryCfg := retry.DefaultConfig()
	if cfg.LLMMaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.LLMMaxAttempts
	}
	openaiOpts := ai.OpenAIOptions{
		BaseURL: cfg.OpenAIBaseURL,
		Timeout: cfg.LLMTimeout,
		Retry:   retryCfg,
		Logger:  logger,
	}

	var (
		factory ai.Factory
		prober  service.Prober
	)
	if cfg.OpenAIMock {
		factory = ai.MockFactory(mockModelVersion)
		prober = ai.MockProber{}
		logger.Info().Msg("using mock evaluator")
	} else {
		factory = ai.OpenAIFactory(openaiOpts)
		prober = ai.OpenAIProber{Opts: openaiOpts}
	}

	h := &handlers.Handler{
		Store:   store,
		Objects: objects,
		Ingest: &service.Ingestor{
			Store:   store,
			Objects: objects,
			Cache:   insightsCache,
			Logger:  logger,
		},
		Rebuild: &service.Rebuilder{
			Store:  store,
			Cache:  insightsCache,
			Logger: logger,
		},
		Scoring: &service.ScoringService{
			Store: store,
			Pipeline: &scoring.Pipeline{
				NewEvaluator: factory,
				Workers:      cfg.ScoringWorkers,
				Logger:       logger,
			},
			Box:       box,
			MaxTokens: cfg.LLMMaxTokens,
			Logger:    logger,
		},
		Reports: &service.Reports{Store: store, Cache: insightsCache, Logger: logger},
		Insights: &service.InsightsService{
			Tables: store,
			Cache:  insightsCache,
			TTL:    cfg.InsightsCacheTTL,
			Logger: logger,
		},
		Settings: &service.SettingsService{
			Store:  store,
			Box:    box,
			Probe:  prober,
			Logger: logger,
		},
		Validator:   validator.New(),
		Logger:      logger,
		ReadTimeout: cfg.RequestTimeout,
	}

	router := httpapi.Router(cfg, h)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
