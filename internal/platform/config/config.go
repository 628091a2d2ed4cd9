package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr     string
	LogLevel string

	// DatabaseURL selects the Postgres-backed stores when set.
	DatabaseURL string

	// Redis backs the session store hot path when configured.
	Redis RedisConfig

	// KafkaBrokers enables the audit event publisher when non-empty.
	KafkaBrokers []string
	AuditTopic   string

	WhatsApp WhatsAppConfig
}

// RedisConfig holds connection tuning for the session store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WhatsAppConfig holds Cloud API credentials for the outbound sender and
// the webhook verification handshake.
type WhatsAppConfig struct {
	AccessToken string
	VerifyToken string
	BaseURL     string
}

// FromEnv builds a Config from environment variables with dev defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:        envOr("CRECHEFLOW_ADDR", ":8080"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		AuditTopic: envOr("AUDIT_TOPIC", "crecheflow.onboarding.events"),
		WhatsApp: WhatsAppConfig{
			AccessToken: os.Getenv("WHATSAPP_ACCESS_TOKEN"),
			VerifyToken: os.Getenv("WHATSAPP_VERIFY_TOKEN"),
			BaseURL:     envOr("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v18.0"),
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
