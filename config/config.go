package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env          string
	Server       ServerConfig
	Redis        RedisConfig
	Queue        QueueConfig
	JWT          JWTConfig
	Log          LogConfig
	Kafka        KafkaConfig
	Microservice MicroserviceConfig
	Admin        AdminConfig
}

type ServerConfig struct {
	HTTPPort     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
}

type QueueConfig struct {
	DefaultThreshold        int
	ActiveTTL               time.Duration
	SeenTTL                 time.Duration
	PromoteInterval         time.Duration
	CleanupInterval         time.Duration
	BatchSize               int
	LockTTL                 time.Duration
	CleanupBatchSize        int
	CleanupBatchDelay       time.Duration
	AssumedAdmissionsPerSec int
	MinEstimateSeconds      int
	DefaultPollInterval     time.Duration
}

type KafkaConfig struct {
	Brokers              []string
	ProducerRetryMax     int
	ProducerRequiredAcks int
	Enabled              bool
	ConsumerGroupID      string
}

type MicroserviceConfig struct {
	EventBaseURL string
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type LogConfig struct {
	Level    string
	Mode     string
	Encoding string
}

type AdminConfig struct {
	APIKey string
}

func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("ENV", "development"),
		Server: ServerConfig{
			HTTPPort:     getEnvAsInt("SERVER_HTTP_PORT", 8086),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Queue: QueueConfig{
			DefaultThreshold:        getEnvAsInt("QUEUE_DEFAULT_THRESHOLD", 100),
			ActiveTTL:               getEnvAsDuration("QUEUE_ACTIVE_TTL", 5*time.Minute),
			SeenTTL:                 getEnvAsDuration("QUEUE_SEEN_TTL", 45*time.Second),
			PromoteInterval:         getEnvAsDuration("QUEUE_PROMOTE_INTERVAL", 1*time.Second),
			CleanupInterval:         getEnvAsDuration("QUEUE_CLEANUP_INTERVAL", 30*time.Second),
			BatchSize:               getEnvAsInt("QUEUE_BATCH_SIZE", 50),
			LockTTL:                 getEnvAsDuration("QUEUE_LOCK_TTL", 3*time.Second),
			CleanupBatchSize:        getEnvAsInt("QUEUE_CLEANUP_BATCH_SIZE", 500),
			CleanupBatchDelay:       getEnvAsDuration("QUEUE_CLEANUP_BATCH_DELAY", 50*time.Millisecond),
			AssumedAdmissionsPerSec: getEnvAsInt("QUEUE_ASSUMED_ADMISSIONS_PER_SEC", 2),
			MinEstimateSeconds:      getEnvAsInt("QUEUE_MIN_ESTIMATE_SECONDS", 5),
			DefaultPollInterval:     getEnvAsDuration("QUEUE_DEFAULT_POLL_INTERVAL", 5*time.Second),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "jwt-secret"),
			Expiry: getEnvAsDuration("JWT_EXPIRY", 15*time.Minute),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Mode:     getEnv("LOG_MODE", "development"),
			Encoding: getEnv("LOG_ENCODING", "console"),
		},
		Kafka: KafkaConfig{
			Brokers:              getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			ProducerRetryMax:     getEnvAsInt("KAFKA_PRODUCER_RETRY_MAX", 3),
			ProducerRequiredAcks: getEnvAsInt("KAFKA_PRODUCER_REQUIRED_ACKS", 1),
			Enabled:              getEnvAsBool("KAFKA_ENABLED", true),
			ConsumerGroupID:      getEnv("KAFKA_CONSUMER_GROUP_ID", "admission-service"),
		},
		Microservice: MicroserviceConfig{
			EventBaseURL: getEnv("EVENT_SERVICE_BASE_URL", "http://localhost:8083"),
		},
		Admin: AdminConfig{
			APIKey: getEnv("ADMIN_API_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.HTTPPort)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Queue.DefaultThreshold <= 0 {
		return fmt.Errorf("invalid default threshold: %d", c.Queue.DefaultThreshold)
	}

	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size: %d", c.Queue.BatchSize)
	}

	if c.Env == "production" {
		if c.JWT.Secret == "" || c.JWT.Secret == "jwt-secret" {
			return fmt.Errorf("JWT secret must be set in production")
		}
		if c.Admin.APIKey == "" {
			return fmt.Errorf("admin API key must be set in production")
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	// Split by comma
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
