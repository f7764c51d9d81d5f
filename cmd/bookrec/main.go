package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"bookrec/internal/app"
	"bookrec/internal/config"
	"bookrec/internal/ratelimit"
	"bookrec/internal/server"
	"bookrec/internal/usertoken"
	"bookrec/internal/util"
	"bookrec/pkg/ai"
	"bookrec/pkg/corpus"
	"bookrec/pkg/index"
	"bookrec/pkg/queue"
	"bookrec/pkg/safety"
	"bookrec/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	catalog, err := corpus.Load(cfg.CorpusPath)
	if err != nil {
		log.Fatalf("failed to load corpus: %v", err)
	}
	filter, err := safety.Load(cfg.BannedTermsPath)
	if err != nil {
		log.Fatalf("failed to load banned terms: %v", err)
	}

	st, err := store.NewGormStore(cfg.DatabaseURL, store.WithEmbeddingDim(cfg.EmbeddingDim))
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.RateLimitPerMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}

	hostname, _ := os.Hostname()
	jobQueue, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.QueueStream,
		Group:    cfg.QueueGroup,
		Consumer: hostname,
	})
	if err != nil {
		log.Fatalf("failed to init job queue: %v", err)
	}

	ollama := ai.NewOllamaClient(cfg.EmbeddingBaseURL)
	embedder := ai.NewOllamaEmbedder(ollama, cfg.EmbeddingModel, cfg.EmbeddingDim)
	generator := ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel)
	translator := ai.NewGeneratorTranslator(generator)
	var imager ai.CoverImager
	if cfg.ImageModel != "" {
		imager = ai.NewOpenAICompatImager(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.ImageModel)
	}

	appCore, err := app.New(app.Config{
		Store:               st,
		Corpus:              catalog,
		Index:               index.New(cfg.IndexWorkers),
		Safety:              filter,
		Embedder:            embedder,
		Generator:           generator,
		Translator:          translator,
		Imager:              imager,
		Queue:               jobQueue,
		TopK:                cfg.TopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
		RequestTimeout:      time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		ReadBookPolicy:      cfg.ReadBookPolicy,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	if err := appCore.SyncCatalog(); err != nil {
		log.Fatalf("failed to sync catalog: %v", err)
	}

	ctx := context.Background()
	appCore.StartIndexWorkers(ctx)

	// Build the first snapshot in the background so startup is not gated
	// on the embedding backend. Requests before the first publish get 503.
	go func() {
		if err := appCore.RebuildIndex(ctx); err != nil {
			logger.Error("initial index build failed", "err", err)
		}
	}()

	httpServer := server.New(server.Config{
		App:           appCore,
		TokenVerifier: tokenVerifier,
		Limiter:       limiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("bookrec server listening", "addr", addr, "books", catalog.Len())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
