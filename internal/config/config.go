package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every externally tunable parameter of the service. A
// missing upstream credential is not fatal: the orchestrator detects it and
// answers with an unavailability message instead.
type Config struct {
	HTTPPort    string
	LogLevel    string
	DatabaseURL string

	LLM    LLMConfig
	Corpus CorpusConfig
	Memory MemoryConfig
	Limits LimitsConfig
}

type LLMConfig struct {
	Provider       string // "openai" (OpenAI-compatible, e.g. Groq) or "gemini"
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int
	Stream         bool
}

type CorpusConfig struct {
	Dir           string
	ChunkSize     int
	TopK          int
	DominantTheme string
}

type MemoryConfig struct {
	Size        int // exchange pairs
	TokenBudget int // 0 disables importance-aware trimming
}

type LimitsConfig struct {
	MaxInputLength  int
	RateLimitMax    int
	RateLimitWindow time.Duration
	CacheTTL        time.Duration
	CacheSize       int
	MaxConcurrent   int
}

// HasCredential reports whether an upstream API key is configured.
func (c Config) HasCredential() bool {
	return c.LLM.APIKey != ""
}

// Load reads configuration from the environment, preferring a .env file when
// one exists.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	apiKey := getEnv("LLM_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("GROQ_API_KEY", "")
	}
	if apiKey == "" {
		apiKey = getEnv("GEMINI_API_KEY", "")
	}

	return Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", "roastbot.db"),
		LLM: LLMConfig{
			Provider:       getEnv("LLM_PROVIDER", "openai"),
			APIKey:         apiKey,
			BaseURL:        getEnv("LLM_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:          getEnv("MODEL_NAME", "llama-3.1-8b-instant"),
			EmbeddingModel: getEnv("EMBEDDING_MODEL", ""),
			Temperature:    getEnvAsFloat("TEMPERATURE", 0.8),
			MaxTokens:      getEnvAsInt("MAX_TOKENS", 512),
			Stream:         getEnvAsBool("LLM_STREAM", false),
		},
		Corpus: CorpusConfig{
			Dir:           getEnv("DATA_DIR", "data"),
			ChunkSize:     getEnvAsInt("CHUNK_SIZE", 500),
			TopK:          getEnvAsInt("RETRIEVAL_TOP_K", 3),
			DominantTheme: getEnv("ROAST_THEME", ""),
		},
		Memory: MemoryConfig{
			Size:        getEnvAsInt("MEMORY_SIZE", 10),
			TokenBudget: getEnvAsInt("MEMORY_TOKEN_BUDGET", 0),
		},
		Limits: LimitsConfig{
			MaxInputLength:  getEnvAsInt("MAX_INPUT_LENGTH", 1200),
			RateLimitMax:    getEnvAsInt("RATE_LIMIT_MAX", 5),
			RateLimitWindow: time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
			CacheTTL:        time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second,
			CacheSize:       getEnvAsInt("CACHE_SIZE", 256),
			MaxConcurrent:   getEnvAsInt("MAX_CONCURRENT_REQUESTS", 3),
		},
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
