package app

import (
	"fmt"
	"time"

	"bookrec/internal/config"
	"bookrec/pkg/ai"
	"bookrec/pkg/corpus"
	"bookrec/pkg/index"
	"bookrec/pkg/queue"
	"bookrec/pkg/safety"
	"bookrec/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	Store  store.Store
	Corpus *corpus.Store
	Index  *index.Index
	Safety *safety.Filter

	Embedder   ai.Embedder
	Generator  ai.TextGenerator
	Translator ai.Translator
	Imager     ai.CoverImager

	Queue *queue.RedisJobQueue

	TopK                int
	SimilarityThreshold float64
	RequestTimeout      time.Duration
	ReadBookPolicy      string
}

// App wires the corpus, index, safety filter, and model clients into the
// recommendation and ledger use-cases.
type App struct {
	store  store.Store
	corpus *corpus.Store
	index  *index.Index
	safety *safety.Filter

	embedder   ai.Embedder
	generator  ai.TextGenerator
	translator ai.Translator
	imager     ai.CoverImager

	queue *queue.RedisJobQueue

	topK           int
	minScore       float64
	requestTimeout time.Duration
	readBookPolicy string
}

// New constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Corpus == nil || cfg.Corpus.Len() == 0 {
		return nil, fmt.Errorf("non-empty corpus required")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("index required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator required")
	}
	filter := cfg.Safety
	if filter == nil {
		filter = safety.Default()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = config.DefaultTopK
	}
	minScore := cfg.SimilarityThreshold
	if minScore <= 0 {
		minScore = config.DefaultSimilarityThreshold
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	policy := cfg.ReadBookPolicy
	if policy == "" {
		policy = config.ReadBookPolicyUpsert
	}
	if policy != config.ReadBookPolicyUpsert && policy != config.ReadBookPolicyReject {
		return nil, fmt.Errorf("unknown read-book policy: %s", policy)
	}

	return &App{
		store:          cfg.Store,
		corpus:         cfg.Corpus,
		index:          cfg.Index,
		safety:         filter,
		embedder:       cfg.Embedder,
		generator:      cfg.Generator,
		translator:     cfg.Translator,
		imager:         cfg.Imager,
		queue:          cfg.Queue,
		topK:           topK,
		minScore:       minScore,
		requestTimeout: timeout,
		readBookPolicy: policy,
	}, nil
}
