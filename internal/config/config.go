package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	Env     string
	Auth    AuthConfig
	DB      DBConfig
	Storage StorageConfig
	LLM     LLMConfig
	Cache   CacheConfig
}

type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

type DBConfig struct {
	DSN string
}

type StorageConfig struct {
	Endpoint       string
	PublicEndpoint string
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
}

type LLMConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	RPS         float64
	Burst       int
}

type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
	MaxBytes   int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:    *port,
		Env:     env,
		Auth:    loadAuthConfig(),
		DB:      loadDBConfig(),
		Storage: loadStorageConfig(env),
		LLM:     loadLLMConfig(),
		Cache:   loadCacheConfig(),
	}, nil
}

func loadAuthConfig() AuthConfig {
	ttlMinutes := envInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24)
	return AuthConfig{
		Secret:   firstNonEmpty(strings.TrimSpace(os.Getenv("JWT_SECRET_KEY")), "super-secret-change-me"),
		TokenTTL: time.Duration(ttlMinutes) * time.Minute,
	}
}

func loadDBConfig() DBConfig {
	return DBConfig{
		DSN: firstNonEmpty(
			strings.TrimSpace(os.Getenv("DATABASE_URL")),
			strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		),
	}
}

func loadStorageConfig(env string) StorageConfig {
	endpoint := firstNonEmpty(strings.TrimSpace(os.Getenv("MINIO_ENDPOINT")), "minio:9000")
	return StorageConfig{
		Endpoint:       endpoint,
		PublicEndpoint: firstNonEmpty(strings.TrimSpace(os.Getenv("MINIO_PUBLIC_ENDPOINT")), endpoint),
		Region:         firstNonEmpty(strings.TrimSpace(os.Getenv("MINIO_REGION")), "us-east-1"),
		AccessKey:      firstNonEmpty(strings.TrimSpace(os.Getenv("MINIO_ROOT_USER")), "minioadmin"),
		SecretKey:      firstNonEmpty(strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD")), "minioadmin"),
		Bucket:         firstNonEmpty(strings.TrimSpace(os.Getenv("MINIO_BUCKET")), "llm-images"),
		UseSSL:         resolveUseSSL(env),
	}
}

func loadLLMConfig() LLMConfig {
	return LLMConfig{
		APIKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		Model:       firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_MODEL_NAME")), "gemini-2.0-flash"),
		Temperature: 0.2,
		RPS:         envFloat("LLM_RPS", 0),
		Burst:       envInt("LLM_BURST", 0),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        time.Duration(envInt("CACHE_TTL_MINUTES", 60*24)) * time.Minute,
		MaxEntries: envInt("CACHE_MAX_ENTRIES", 1024),
		MaxBytes:   envInt("CACHE_MAX_BYTES", 16<<20),
	}
}

func resolveUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("MINIO_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return f
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
