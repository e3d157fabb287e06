package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Stripe        StripeConfig
	Fees          FeeConfig
	Collaborators CollaboratorConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	JWTSecret     string
}

type ServerConfig struct {
	Port string
	Env  string
}

func (s ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// FeeConfig carries the platform's money parameters. Injected into the
// usecases at construction, never read from the environment inside business
// logic.
type FeeConfig struct {
	PlatformFeePercent   decimal.Decimal
	WithdrawalFeePercent decimal.Decimal
	MinimumWithdrawal    decimal.Decimal
}

type CollaboratorConfig struct {
	ProjectServiceURL      string
	NotificationServiceURL string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

func Load(logger *zap.Logger) (*Config, error) {
	// Optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", zap.Error(err))
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8030"),
			Env:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "skillswap_payments"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:      strings.ToLower(getEnv("STRIPE_CURRENCY", "usd")),
		},
		Fees: FeeConfig{
			PlatformFeePercent:   getEnvDecimal(logger, "PLATFORM_FEE_PERCENTAGE", "10"),
			WithdrawalFeePercent: getEnvDecimal(logger, "WITHDRAWAL_FEE_PERCENTAGE", "2.5"),
			MinimumWithdrawal:    getEnvDecimal(logger, "MINIMUM_WITHDRAWAL_AMOUNT", "50"),
		},
		Collaborators: CollaboratorConfig{
			ProjectServiceURL:      getEnv("PROJECT_SERVICE_URL", "http://localhost:8023"),
			NotificationServiceURL: getEnv("NOTIFICATION_SERVICE_URL", "http://localhost:8025"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TRANSACTION_TOPIC", "payment.transactions"),
		},
		JWTSecret: getEnv("JWT_SECRET", ""),
	}
	cfg.Kafka.Enabled = len(cfg.Kafka.Brokers) > 0

	if cfg.Server.IsProduction() {
		if cfg.Stripe.SecretKey == "" {
			return nil, fmt.Errorf("STRIPE_SECRET_KEY is required in production")
		}
		if cfg.Stripe.WebhookSecret == "" {
			return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required in production")
		}
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("platform_fee_percent", cfg.Fees.PlatformFeePercent.String()),
		zap.Bool("kafka_enabled", cfg.Kafka.Enabled))

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDecimal(logger *zap.Logger, key, fallback string) decimal.Decimal {
	raw := getEnv(key, fallback)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		logger.Warn("invalid decimal in environment, using default",
			zap.String("key", key),
			zap.String("value", raw),
			zap.String("default", fallback))
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
