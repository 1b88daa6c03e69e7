package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Server     ServerConfig
	Session    SessionConfig
	Auth       AuthConfig
	Redis      RedisConfig
	RabbitMQ   RabbitMQConfig
	Storefront StorefrontConfig
	Submit     SubmitConfig
	I18n       I18nConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port string
}

type SessionConfig struct {
	Secret string
	Domain string
	MaxAge int
	Secure bool
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type RedisConfig struct {
	URL              string
	RateLimitEnabled bool
}

type RabbitMQConfig struct {
	URL             string
	Queue           string
	ChannelPoolSize int
}

type StorefrontConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SubmitConfig selects how accepted payment submissions leave this service.
type SubmitConfig struct {
	Transport         string // http, redis or amqp
	QueueName         string
	WorkerConcurrency int
}

type I18nConfig struct {
	DefaultLanguage string
}

type LogConfig struct {
	Level string
}

// Load reads .env when present, then the process environment.
func Load(logger *zap.Logger) *Config {
	if err := godotenv.Load(); err != nil {
		logger.Warn("Error loading .env file", zap.Error(err))
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Session: SessionConfig{
			Secret: os.Getenv("SESSION_SECRET"),
			Domain: os.Getenv("SESSION_DOMAIN"),
			MaxAge: getEnvInt("SESSION_MAX_AGE", 3600),
			Secure: getEnvBool("SESSION_SECURE", true),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			Issuer:    getEnv("JWT_ISSUER", "urban-loom-storefront"),
		},
		Redis: RedisConfig{
			URL:              os.Getenv("REDIS_URL"),
			RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", false),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             os.Getenv("RABBITMQ_URL"),
			Queue:           getEnv("RABBITMQ_QUEUE", "payment_submissions"),
			ChannelPoolSize: getEnvInt("RABBITMQ_CHANNEL_POOL_SIZE", 4),
		},
		Storefront: StorefrontConfig{
			BaseURL: strings.TrimRight(getEnv("STOREFRONT_URL", "http://localhost:8000"), "/"),
			Timeout: time.Duration(getEnvInt("STOREFRONT_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Submit: SubmitConfig{
			Transport:         strings.ToLower(getEnv("SUBMIT_TRANSPORT", "http")),
			QueueName:         getEnv("SUBMIT_QUEUE", "payment_submissions"),
			WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		},
		I18n: I18nConfig{
			DefaultLanguage: getEnv("LANGUAGE_CODE", "es"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	// Use default Redis URL if not set
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
		logger.Warn("REDIS_URL not set, using default", zap.String("url", cfg.Redis.URL))
	}
	if cfg.Session.Secret == "" {
		logger.Warn("SESSION_SECRET not set, payment form sessions will not survive a restart")
	}

	logger.Info("Config loaded",
		zap.String("port", cfg.Server.Port),
		zap.String("storefront", cfg.Storefront.BaseURL),
		zap.String("submit_transport", cfg.Submit.Transport),
		zap.Bool("rate_limit", cfg.Redis.RateLimitEnabled),
		zap.String("language", cfg.I18n.DefaultLanguage),
	)

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
