package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the whole application configuration, populated from
// environment variables in Load.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	JWT       JWTConfig
	SMTP      SMTPConfig
	SMS       SMSConfig
	Push      PushConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Breaker   map[string]BreakerConfig // keyed by channel
	Timeouts  map[string]time.Duration // per-channel adapter call timeout
	Policy    PolicyConfig
	Retention RetentionConfig
	Alerting  AlertingConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
	DLQTopic      string
}

type JWTConfig struct {
	Secret string
}

type SMTPConfig struct {
	Host string
	Port string
	From string
}

type SMSConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	APIURL     string
}

type PushConfig struct {
	ServerKey string
	APIURL    string
}

// RateLimitConfig carries the hourly caps per channel plus the fail mode
// for internal limiter inconsistencies.
type RateLimitConfig struct {
	EmailPerHour int
	SMSPerHour   int
	PushPerHour  int
	InAppPerHour int
	FailClosed   bool
}

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       float64
}

type BreakerConfig struct {
	ErrorRate     float64
	Wait          time.Duration
	HalfOpenCalls int
	MinCalls      int
}

// PolicyConfig groups the delivery policy switches.
type PolicyConfig struct {
	QuietHoursUrgentBypass bool
	InAppRequireSession    bool
	DeliveredAckWindow     time.Duration
}

type RetentionConfig struct {
	AuditDays     int
	AnalyticsDays int
}

type AlertingConfig struct {
	WebhookURL string
}

// Channel keys used for the per-channel config maps. The canonical channel
// constants live in the notification model; config stays string-keyed to
// avoid the import cycle.
var channels = []string{"EMAIL", "SMS", "PUSH", "IN_APP"}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Notification Service"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "notifications"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 25),
			MinConns: getEnvInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "notification-service"),
			DLQTopic:      getEnv("KAFKA_DLQ_TOPIC", "notifications.dlq"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		SMTP: SMTPConfig{
			Host: getEnv("SMTP_HOST", "localhost"),
			Port: getEnv("SMTP_PORT", "1025"),
			From: getEnv("SMTP_FROM", "noreply@notifications.dev"),
		},
		SMS: SMSConfig{
			AccountSID: getEnv("SMS_ACCOUNT_SID", ""),
			AuthToken:  getEnv("SMS_AUTH_TOKEN", ""),
			FromNumber: getEnv("SMS_FROM_NUMBER", ""),
			APIURL:     getEnv("SMS_API_URL", "https://api.twilio.com"),
		},
		Push: PushConfig{
			ServerKey: getEnv("PUSH_SERVER_KEY", ""),
			APIURL:    getEnv("PUSH_API_URL", "https://fcm.googleapis.com"),
		},
		RateLimit: RateLimitConfig{
			EmailPerHour: getEnvInt("RATE_LIMIT_EMAIL_PER_HOUR", 1000),
			SMSPerHour:   getEnvInt("RATE_LIMIT_SMS_PER_HOUR", 100),
			PushPerHour:  getEnvInt("RATE_LIMIT_PUSH_PER_HOUR", 10000),
			InAppPerHour: getEnvInt("RATE_LIMIT_IN_APP_PER_HOUR", 1000),
			FailClosed:   getEnvBool("RATE_LIMIT_FAIL_CLOSED", false),
		},
		Retry: RetryConfig{
			MaxAttempts:  getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			InitialDelay: getEnvMillis("RETRY_INITIAL_DELAY_MS", 5000),
			MaxDelay:     getEnvMillis("RETRY_MAX_DELAY_MS", 60000),
			Jitter:       getEnvFloat("RETRY_JITTER", 0.2),
		},
		Policy: PolicyConfig{
			QuietHoursUrgentBypass: getEnvBool("QUIET_HOURS_URGENT_BYPASS", true),
			InAppRequireSession:    getEnvBool("IN_APP_REQUIRE_SESSION", false),
			DeliveredAckWindow:     getEnvMillis("IN_APP_ACK_WINDOW_MS", 5000),
		},
		Retention: RetentionConfig{
			AuditDays:     getEnvInt("AUDIT_RETENTION_DAYS", 90),
			AnalyticsDays: getEnvInt("ANALYTICS_RETENTION_DAYS", 365),
		},
		Alerting: AlertingConfig{
			WebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
		},
	}

	cfg.Breaker = make(map[string]BreakerConfig, len(channels))
	cfg.Timeouts = make(map[string]time.Duration, len(channels))
	for _, ch := range channels {
		cfg.Breaker[ch] = BreakerConfig{
			ErrorRate:     getEnvFloat("CB_"+ch+"_ERROR_RATE", 0.5),
			Wait:          getEnvMillis("CB_"+ch+"_WAIT_MS", 30000),
			HalfOpenCalls: getEnvInt("CB_"+ch+"_HALF_OPEN_CALLS", 1),
			MinCalls:      getEnvInt("CB_"+ch+"_MIN_CALLS", 4),
		}
		cfg.Timeouts[ch] = getEnvMillis("TIMEOUT_"+ch+"_MS", defaultTimeoutMS(ch))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func defaultTimeoutMS(channel string) int {
	switch channel {
	case "PUSH", "IN_APP":
		return 2000
	default:
		return 10000
	}
}

// Validate checks the config for values that must not ship to production.
func (c *Config) Validate() error {
	if c.App.Environment == "production" {
		if c.JWT.Secret == "your-secret-key-change-in-production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD must be set in production")
		}
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 0")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("RETRY_JITTER must be within [0,1]")
	}
	for ch, b := range c.Breaker {
		if b.ErrorRate <= 0 || b.ErrorRate > 1 {
			return fmt.Errorf("CB_%s_ERROR_RATE must be within (0,1]", ch)
		}
	}
	return nil
}

// RateLimitFor returns the hourly cap for a channel name.
func (c *Config) RateLimitFor(channel string) int {
	switch channel {
	case "EMAIL":
		return c.RateLimit.EmailPerHour
	case "SMS":
		return c.RateLimit.SMSPerHour
	case "PUSH":
		return c.RateLimit.PushPerHour
	case "IN_APP":
		return c.RateLimit.InAppPerHour
	default:
		return 0
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Millisecond
}
