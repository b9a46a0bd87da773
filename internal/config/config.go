package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	NotifierLog = "log"
	NotifierSES = "ses"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	StoreDriver string
	DBURL       string
	MongoURI    string
	MongoDB     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret    string
	JWTAccessTTL time.Duration

	AdminEmail    string
	AdminPassword string
	AdminName     string

	UploadDir      string
	MaxUploadBytes int64
	MaxBodyBytes   int64

	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	OTLPEndpoint    string
	TraceSampleRate float64

	Notifier           string
	SESRegion          string
	SESAccessKeyID     string
	SESSecretAccessKey string
	SESFromAddress     string

	CatalogCacheTTL time.Duration
	RequestTimeout  time.Duration

	WorkerPort        int
	WorkerConcurrency int
	WorkerPollTimeout time.Duration
}

// Load reads the environment. Outside prod a .env file is loaded first
// when present; variables already set win over the file.
func Load() (Config, error) {
	env := getEnv("APP_ENV", "dev")

	if env != "prod" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := Config{
		Env:      env,
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", ""),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
		DBURL:       buildDBURL(),
		MongoURI:    getEnv("MONGO_URI", "mongodb://127.0.0.1:27017"),
		MongoDB:     getEnv("MONGO_DB", "eventpass"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTAccessTTL: time.Duration(getEnvInt("JWT_ACCESS_TTL_MINUTES", 60)) * time.Minute,

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Administrator"),

		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 5<<20)),
		MaxBodyBytes:   int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),

		CORSOrigins:    getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 5),

		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceSampleRate: getEnvFloat("OTEL_TRACES_SAMPLE_RATE", 1),

		Notifier:           strings.ToLower(getEnv("NOTIFIER", NotifierLog)),
		SESRegion:          getEnv("SES_REGION", "us-east-1"),
		SESAccessKeyID:     getEnv("SES_ACCESS_KEY_ID", ""),
		SESSecretAccessKey: getEnv("SES_SECRET_ACCESS_KEY", ""),
		SESFromAddress:     getEnv("SES_FROM_ADDRESS", ""),

		CatalogCacheTTL: getEnvDuration("CATALOG_CACHE_TTL", 30*time.Second),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 2*time.Second),

		WorkerPort:        getEnvInt("WORKER_PORT", 8081),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollTimeout: getEnvDuration("WORKER_POLL_TIMEOUT", 2*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory, StorePostgres, StoreMongo:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of memory, postgres, mongo; got %q", c.StoreDriver)
	}

	switch c.Notifier {
	case NotifierLog:
	case NotifierSES:
		if c.SESFromAddress == "" {
			return errors.New("SES_FROM_ADDRESS is required when NOTIFIER=ses")
		}
	default:
		return fmt.Errorf("NOTIFIER must be log or ses; got %q", c.Notifier)
	}

	if c.JWTSecret == "" {
		if c.Env == "prod" {
			return errors.New("JWT_SECRET is required in prod")
		}
	}
	return nil
}

func buildDBURL() string {
	if url := getEnv("DATABASE_URL", ""); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "eventpass")
	pass := getEnv("DB_PASSWORD", "eventpass")
	name := getEnv("DB_NAME", "eventpass")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

// WithTimeout derives a storage deadline from the request context.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, d)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			return fallback
		}
		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fallback
		}
		return f
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fallback
		}
		return d
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
