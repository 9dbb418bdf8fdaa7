package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Storage
	StorageBackend  string // "fs" or "s3"
	StorageBasePath string
	ChunkBatchSize  int
	CacheEnabled    bool
	CacheMaxSize    int
	CacheExpiry     time.Duration

	// S3 record store (only used when StorageBackend is "s3")
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	// Chunking
	ChunkSize int

	// Ranking
	OverfetchFactor    int
	DiversityThreshold float64
	MaxRelevanceFloor  float32

	// Providers
	Provider       string // "ollama" or "gemini"
	OllamaBaseURL  string
	OllamaModel    string
	EmbedModel     string
	SupportsBatch  bool
	EmbedBatchSize int
	EmbedRateLimit float64 // embedding requests per second, 0 = unlimited
	Temperature    float64
	TopP           float64
	MaxTokens      int
	GeminiAPIKey   string
	GeminiModel    string
	GeminiEmbed    string

	// Orchestration
	WorkerPoolSize  int
	FetchTimeout    time.Duration
	GenerateTimeout time.Duration
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		StorageBackend:  getEnv("STORAGE_BACKEND", "fs"),
		StorageBasePath: getEnv("STORAGE_BASE_PATH", "./data"),
		ChunkBatchSize:  getEnvInt("CHUNK_BATCH_SIZE", 50),
		CacheEnabled:    getEnvBool("CACHE_ENABLED", true),
		CacheMaxSize:    getEnvInt("CACHE_MAX_SIZE", 100),
		CacheExpiry:     time.Duration(getEnvInt("CACHE_EXPIRY_MINUTES", 60)) * time.Minute,

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "docquery-store"),

		ChunkSize: getEnvInt("CHUNK_SIZE", 1000),

		OverfetchFactor:    getEnvInt("OVERFETCH_FACTOR", 3),
		DiversityThreshold: getEnvFloat("DIVERSITY_THRESHOLD", 0.7),
		MaxRelevanceFloor:  float32(getEnvFloat("MAX_RELEVANCE_FLOOR", 0.3)),

		Provider:       getEnv("LLM_PROVIDER", "ollama"),
		OllamaBaseURL:  getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:    getEnv("OLLAMA_MODEL", "llama3.2"),
		EmbedModel:     getEnv("EMBED_MODEL", "nomic-embed-text"),
		SupportsBatch:  getEnvBool("SUPPORTS_BATCH_EMBEDDINGS", false),
		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 10),
		EmbedRateLimit: getEnvFloat("EMBED_RATE_LIMIT", 0),
		Temperature:    getEnvFloat("LLM_TEMPERATURE", 0.2),
		TopP:           getEnvFloat("LLM_TOP_P", 0.9),
		MaxTokens:      getEnvInt("LLM_MAX_TOKENS", 2048),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiEmbed:    getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),

		WorkerPoolSize:  getEnvInt("WORKER_POOL_SIZE", 4),
		FetchTimeout:    time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		GenerateTimeout: time.Duration(getEnvInt("GENERATE_TIMEOUT_SECONDS", 120)) * time.Second,
	}

	if cfg.StorageBackend == "s3" && (cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "") {
		log.Fatal("STORAGE_BACKEND=s3 requires AWS_ACCESS_KEY and AWS_SECRET_KEY")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %v", key, v, def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %v", key, v, def)
		return def
	}
	return b
}
