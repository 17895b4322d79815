package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type KafkaConfig struct {
	BrokerURL                 string
	PurchaseOrderTopic        string
	PurchaseOrderPartitions   int
	ReplyTopic                string
	NotificationTopic         string
	CoreConsumerGroup         string
	NotificationConsumerGroup string
}

func (k KafkaConfig) Brokers() []string {
	return strings.Split(k.BrokerURL, ",")
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// CoreConfig configures cmd/core.
type CoreConfig struct {
	Kafka KafkaConfig
	DB    DBConfig

	// Storage is "postgres" or "memory".
	Storage        string
	MigrationsPath string
	HTTPPort       int

	OutboxPollInterval time.Duration
	OutboxPollTimeout  time.Duration
	OutboxBatchSize    int
	HandlerTimeout     time.Duration
	RetryBackoff       time.Duration
}

// EdgeConfig configures cmd/purchase-order.
type EdgeConfig struct {
	Kafka KafkaConfig

	ReplyGroupID   string
	ReplyTimeout   time.Duration
	HTTPPort       int
	AllowedOrigins []string

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	ErrorStream      string
	ErrorStreamLimit int64
}

// NotificationConfig configures cmd/notification.
type NotificationConfig struct {
	Kafka KafkaConfig
}

// GatewayConfig configures cmd/gateway.
type GatewayConfig struct {
	Port                    int
	PurchaseOrderServiceURL string
	CoreServiceURL          string
	AllowedOrigins          []string
	RequestTimeout          time.Duration
}

func loadKafka() KafkaConfig {
	return KafkaConfig{
		BrokerURL:                 getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092"),
		PurchaseOrderTopic:        getEnvOrDefault("KAFKA_PURCHASE_ORDER_TOPIC", "purchase-order"),
		PurchaseOrderPartitions:   getEnvAsInt("KAFKA_PURCHASE_ORDER_PARTITIONS", 2),
		ReplyTopic:                getEnvOrDefault("KAFKA_REPLY_TOPIC", "purchase-order-replies"),
		NotificationTopic:         getEnvOrDefault("KAFKA_NOTIFICATION_TOPIC", "notification"),
		CoreConsumerGroup:         getEnvOrDefault("KAFKA_CORE_CONSUMER_GROUP", "core-service-group"),
		NotificationConsumerGroup: getEnvOrDefault("KAFKA_NOTIFICATION_CONSUMER_GROUP", "notification-service-group"),
	}
}

func LoadCoreConfig() (*CoreConfig, error) {
	cfg := &CoreConfig{Kafka: loadKafka()}

	cfg.DB.Host = getEnvOrDefault("CORE_DB_HOST", "localhost")
	cfg.DB.Port = getEnvAsInt("CORE_DB_PORT", 5432)
	cfg.DB.User = getEnvOrDefault("CORE_DB_USER", "user")
	cfg.DB.Password = getEnvOrDefault("CORE_DB_PASSWORD", "password")
	cfg.DB.Name = getEnvOrDefault("CORE_DB_NAME", "core_db")
	cfg.DB.SSLMode = getEnvOrDefault("CORE_DB_SSLMODE", "disable")

	cfg.Storage = getEnvOrDefault("CORE_STORAGE", "postgres")
	cfg.MigrationsPath = getEnvOrDefault("CORE_MIGRATIONS_PATH", "file:///app/migrations")
	cfg.HTTPPort = getEnvAsInt("CORE_HTTP_PORT", 8082)

	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxPollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 5*time.Second)
	cfg.OutboxBatchSize = getEnvAsInt("OUTBOX_BATCH_SIZE", 10)
	cfg.HandlerTimeout = getEnvAsDuration("CORE_HANDLER_TIMEOUT", 25*time.Second)
	cfg.RetryBackoff = getEnvAsDuration("CORE_RETRY_BACKOFF", 1*time.Second)

	switch cfg.Storage {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("invalid CORE_STORAGE %q: want postgres or memory", cfg.Storage)
	}
	return cfg, nil
}

func LoadEdgeConfig() (*EdgeConfig, error) {
	cfg := &EdgeConfig{Kafka: loadKafka()}

	// Every instance needs its own group so that each one sees all replies.
	cfg.ReplyGroupID = getEnvOrDefault("KAFKA_REPLY_GROUP_ID", "purchase-order-replies-"+uuid.NewString())
	cfg.ReplyTimeout = getEnvAsDuration("PURCHASE_ORDER_REPLY_TIMEOUT", 10*time.Second)
	cfg.HTTPPort = getEnvAsInt("PURCHASE_ORDER_HTTP_PORT", 8081)
	cfg.AllowedOrigins = getEnvAsList("PURCHASE_ORDER_ALLOWED_ORIGINS", []string{"http://localhost:5173"})

	cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvAsInt("REDIS_DB", 0)
	cfg.ErrorStream = getEnvOrDefault("ERROR_RECORD_STREAM", "purchase-order:error-records")
	cfg.ErrorStreamLimit = int64(getEnvAsInt("ERROR_RECORD_STREAM_MAXLEN", 100000))

	if cfg.ReplyTimeout <= 0 {
		return nil, fmt.Errorf("invalid PURCHASE_ORDER_REPLY_TIMEOUT: must be positive")
	}
	return cfg, nil
}

func LoadNotificationConfig() (*NotificationConfig, error) {
	return &NotificationConfig{Kafka: loadKafka()}, nil
}

func LoadGatewayConfig() (*GatewayConfig, error) {
	cfg := &GatewayConfig{
		Port:                    getEnvAsInt("GATEWAY_PORT", 80),
		PurchaseOrderServiceURL: getEnvOrDefault("PURCHASE_ORDER_SERVICE_HOST", "http://localhost:8081"),
		CoreServiceURL:          getEnvOrDefault("CORE_SERVICE_HOST", "http://localhost:8082"),
		AllowedOrigins:          getEnvAsList("GATEWAY_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		RequestTimeout:          getEnvAsDuration("GATEWAY_REQUEST_TIMEOUT", 30*time.Second),
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid GATEWAY_PORT: %d", cfg.Port)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
