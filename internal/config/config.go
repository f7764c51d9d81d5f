package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// Defaults for retrieval tuning; overridable per deployment.
const (
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.30
)

// ReadBookPolicy selects duplicate handling for mark-as-read.
const (
	ReadBookPolicyUpsert = "upsert"
	ReadBookPolicyReject = "reject"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	CorpusPath      string `yaml:"corpusPath"`
	BannedTermsPath string `yaml:"bannedTermsPath"`

	EmbeddingBaseURL string `yaml:"embeddingBaseURL"`
	EmbeddingModel   string `yaml:"embeddingModel"`
	EmbeddingDim     int    `yaml:"embeddingDim"`

	GenerationBaseURL string `yaml:"generationBaseURL"`
	GenerationAPIKey  string `yaml:"generationAPIKey"`
	GenerationModel   string `yaml:"generationModel"`
	ImageModel        string `yaml:"imageModel"`

	// TopK is the candidate count fetched per query; default 5.
	TopK int `yaml:"topK"`
	// SimilarityThreshold is the minimum cosine score a candidate must
	// clear; default 0.30.
	SimilarityThreshold   float64 `yaml:"similarityThreshold"`
	RequestTimeoutSeconds int     `yaml:"requestTimeoutSeconds"`
	IndexWorkers          int     `yaml:"indexWorkers"`

	ReadBookPolicy string `yaml:"readBookPolicy"`

	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`

	JWTSecret   string `yaml:"jwtSecret"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`

	QueueStream string `yaml:"queueStream"`
	QueueGroup  string `yaml:"queueGroup"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.GenerationAPIKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("BOOKREC_CORPUS_PATH"); v != "" {
		cfg.CorpusPath = v
	}
	if v := os.Getenv("BOOKREC_EMBEDDING_DIM"); v != "" {
		dim, err := strconv.Atoi(v)
		if err != nil || dim <= 0 {
			return cfg, fmt.Errorf("invalid BOOKREC_EMBEDDING_DIM: %q", v)
		}
		cfg.EmbeddingDim = dim
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		cfg.RequestTimeoutSeconds = 30
	}
	if cfg.ReadBookPolicy == "" {
		cfg.ReadBookPolicy = ReadBookPolicyUpsert
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 30
	}
	if cfg.QueueStream == "" {
		cfg.QueueStream = "bookrec:reindex"
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = "bookrec"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.CorpusPath == "" {
		return errors.New("config: corpusPath is required (set in config.yaml or BOOKREC_CORPUS_PATH)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.EmbeddingModel == "" {
		return errors.New("config: embeddingModel is required (set in config.yaml)")
	}
	if cfg.GenerationModel == "" {
		return errors.New("config: generationModel is required (set in config.yaml)")
	}
	if cfg.GenerationBaseURL == "" {
		return errors.New("config: generationBaseURL is required (set in config.yaml)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	if cfg.SimilarityThreshold >= 1 {
		return fmt.Errorf("config: similarityThreshold must be below 1, got %v", cfg.SimilarityThreshold)
	}
	if cfg.ReadBookPolicy != ReadBookPolicyUpsert && cfg.ReadBookPolicy != ReadBookPolicyReject {
		return fmt.Errorf("config: readBookPolicy must be %q or %q", ReadBookPolicyUpsert, ReadBookPolicyReject)
	}
	return nil
}
