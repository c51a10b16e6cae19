package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
	Sync     SyncConfig
}

type ServerConfig struct {
	Port  string
	Env   string
	Token string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicEvents   string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

// SyncConfig drives the client-side separation engine: where the
// authoritative service lives and how aggressively to reconnect/retry.
type SyncConfig struct {
	BaseURL  string
	WSURL    string
	Token    string
	UserID   int64
	UserName string
	Role     string

	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	MaxReconnectAttempts int
	UpdateRetries        int
	RetryUnit            time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	userID, _ := strconv.ParseInt(getEnv("SYNC_USER_ID", "1"), 10, 64)
	maxAttempts, _ := strconv.Atoi(getEnv("SYNC_MAX_RECONNECT_ATTEMPTS", "5"))
	updateRetries, _ := strconv.Atoi(getEnv("SYNC_UPDATE_RETRIES", "2"))

	cfg := &Config{
		Server: ServerConfig{
			Port:  getEnv("PORT", "8080"),
			Env:   getEnv("ENV", "development"),
			Token: getEnv("SERVICE_TOKEN", "dev-token"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:       splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			TopicEvents:   getEnv("KAFKA_TOPIC_SEPARATION_EVENTS", "separation-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "separation-service-group"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
		Sync: SyncConfig{
			BaseURL:              getEnv("SYNC_BASE_URL", "http://localhost:8080"),
			WSURL:                getEnv("SYNC_WS_URL", "ws://localhost:8080/api/ws/orders"),
			Token:                getEnv("SYNC_TOKEN", "dev-token"),
			UserID:               userID,
			UserName:             getEnv("SYNC_USER_NAME", "operador"),
			Role:                 getEnv("SYNC_USER_ROLE", "separator"),
			ReconnectBase:        getDuration("SYNC_RECONNECT_BASE", time.Second),
			ReconnectCap:         getDuration("SYNC_RECONNECT_CAP", 30*time.Second),
			MaxReconnectAttempts: maxAttempts,
			UpdateRetries:        updateRetries,
			RetryUnit:            getDuration("SYNC_RETRY_UNIT", time.Second),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s", cfg.Server.Env, cfg.Server.Port)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
