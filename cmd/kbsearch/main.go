package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/config"
	dbRedis "github.com/kailas-cloud/kbsearch/internal/db/redis"
	"github.com/kailas-cloud/kbsearch/internal/domain"
	logpkg "github.com/kailas-cloud/kbsearch/internal/logger"
	manifestpkg "github.com/kailas-cloud/kbsearch/internal/manifest"
	"github.com/kailas-cloud/kbsearch/internal/metrics"
	candidaterepo "github.com/kailas-cloud/kbsearch/internal/repository/candidate"
	"github.com/kailas-cloud/kbsearch/internal/repository/embcache"
	quotarepo "github.com/kailas-cloud/kbsearch/internal/repository/quota"
	"github.com/kailas-cloud/kbsearch/internal/throttle"
	chiTransport "github.com/kailas-cloud/kbsearch/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/kbsearch/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/kbsearch/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/kbsearch/internal/usecase/health"
	retrievaluc "github.com/kailas-cloud/kbsearch/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/kbsearch/internal/usecase/usage"
	"github.com/kailas-cloud/kbsearch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting kbsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	if cfg.Embedding.Provider == "" {
		logger.Fatal("embedding.provider is required")
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.Register()

	// The quota always counts tokens; limits apply only when configured.
	qc := cfg.Embedding.Quota
	quota := embeddinguc.NewQuota(
		cfg.Embedding.Provider, qc.DailyTokenLimit, qc.MonthlyTokenLimit,
		embeddinguc.Action(qc.Action), logger,
	).WithStore(ctx, quotarepo.New(store), cfg.Storage.KeyPrefix)

	queryEmbedder, healthEmbedder := buildEmbedder(cfg, store, quota, logger)
	logger.Info("Query embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("quota_limited", qc.Enabled()),
	)

	opts := []retrievaluc.Option{
		retrievaluc.WithEmbeddingModel(cfg.Embedding.Model),
		retrievaluc.WithAbortIfDeadline(cfg.Retriever.AbortIfDeadline),
	}

	// Pass nil interfaces (not typed nil pointers) when manifests are off.
	var (
		manifestReader  chiTransport.ManifestReader
		manifestChecker healthuc.ManifestChecker
	)
	if dir := cfg.Retriever.ManifestDir; dir != "" {
		sink := manifestpkg.NewFileSink(dir)
		opts = append(opts, retrievaluc.WithManifestWriter(manifestpkg.NewWriter(sink, logger)))
		manifestReader = sink
		manifestChecker = sink
		logger.Info("Manifests enabled", zap.String("dir", dir))
	}

	searchSvc := retrievaluc.New(
		candidaterepo.New(store, cfg.Storage.KeyPrefix),
		queryEmbedder,
		throttle.NewRegistry(logger),
		logger,
		opts...,
	)
	healthSvc := healthuc.New(store, healthEmbedder, manifestChecker)

	server := chiTransport.NewServer(searchSvc, manifestReader, healthSvc, chiTransport.Defaults{
		DB:             cfg.Retriever.DB,
		K:              cfg.Retriever.DefaultK,
		CandidateLimit: cfg.Retriever.CandidateLimit,
		Throttle:       cfg.Retriever.ThrottleSettings(),
	}, logger).WithUsage(usageuc.New(cfg.Embedding.Provider, quota))

	routerOpts := chiTransport.RouterOptions{APIKeys: cfg.Auth.APIKeys, Logger: logger}
	if cfg.RateLimit.RPS > 0 {
		limiter, stop := chiTransport.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger)
		defer stop()
		routerOpts.RateLimiter = limiter
	}

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      chiTransport.NewRouter(server, routerOpts),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the query embedder chain:
// OpenAI -> Metered (quota) -> Cached -> Instruction.
// Cache hits never touch the quota, and the cache key includes the instruction.
// The second return value is the health-check view of the chain.
func buildEmbedder(
	cfg config.Config,
	store *dbRedis.Store,
	quota *embeddinguc.Quota,
	logger *zap.Logger,
) (retrievaluc.Embedder, domain.HealthChecker) {
	provCfg, _ := cfg.Embedding.ActiveProvider()

	// Base provider (with transport metrics built-in)
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     provCfg.APIKey,
		BaseURL:    provCfg.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	metered := embeddinguc.NewMeteredEmbedder(base, cfg.Embedding.Provider, cfg.Embedding.Model, quota, logger)

	cached := embcache.New(metered, store, embcache.Options{
		KeyPrefix: cfg.Storage.KeyPrefix,
		Model:     cfg.Embedding.Model,
		TTL:       cfg.Embedding.CacheTTL(),
	}, metrics.EmbeddingCacheTotal, logger)

	if instruction := cfg.Embedding.QueryInstruction; instruction != "" {
		return domain.NewInstructionEmbedder(cached, instruction), cached
	}
	return cached, cached
}
