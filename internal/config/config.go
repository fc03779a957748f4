package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wanderly-travel/service-checkout/internal/adapter"
	"github.com/wanderly-travel/service-checkout/internal/platform/cache"
	"github.com/wanderly-travel/service-checkout/internal/platform/database"
)

// Gateway names accepted by PAYMENT_GATEWAY.
const (
	GatewayMock   = "mock"
	GatewayStripe = "stripe"
)

// KafkaConfig holds broker settings.
type KafkaConfig struct {
	Brokers     []string
	GroupPrefix string
}

// JWTConfig holds token settings.
type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ServiceConfig holds all configuration for the checkout service.
type ServiceConfig struct {
	Port               string
	AppEnv             string
	DBConfig           database.PostgresConfig
	RedisConfig        cache.Config
	KafkaConfig        KafkaConfig
	JWTConfig          JWTConfig
	PaymentGateway     string
	StripeConfig       adapter.StripeConfig
	Currency           string
	GatewayTimeout     time.Duration
	RateLimitPerMin    int
	MigrationsDir      string
	CORSAllowOrigins   []string
	MockGatewayURL     string
	MockGatewayAutoPay bool
}

// IsDevelopment reports whether the service runs in development mode.
func (c *ServiceConfig) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Load reads configuration from environment variables and returns a ServiceConfig.
func Load() (*ServiceConfig, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &ServiceConfig{
		Port:   ":" + strings.TrimPrefix(v.GetString("SERVICE_PORT"), ":"),
		AppEnv: v.GetString("APP_ENV"),
		DBConfig: database.PostgresConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		RedisConfig: cache.Config{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		KafkaConfig: KafkaConfig{
			Brokers:     splitList(v.GetString("KAFKA_BROKERS")),
			GroupPrefix: v.GetString("KAFKA_GROUP_PREFIX"),
		},
		JWTConfig: JWTConfig{
			Secret:     v.GetString("JWT_SECRET"),
			AccessTTL:  v.GetDuration("JWT_ACCESS_TTL"),
			RefreshTTL: v.GetDuration("JWT_REFRESH_TTL"),
		},
		PaymentGateway:     strings.ToLower(v.GetString("PAYMENT_GATEWAY")),
		Currency:           strings.ToUpper(v.GetString("CURRENCY")),
		GatewayTimeout:     v.GetDuration("GATEWAY_TIMEOUT"),
		RateLimitPerMin:    v.GetInt("RATE_LIMIT_PER_MINUTE"),
		MigrationsDir:      v.GetString("MIGRATIONS_DIR"),
		CORSAllowOrigins:   splitList(v.GetString("CORS_ALLOW_ORIGINS")),
		MockGatewayURL:     v.GetString("MOCK_GATEWAY_URL"),
		MockGatewayAutoPay: v.GetBool("MOCK_GATEWAY_AUTO_PAY"),
	}
	cfg.StripeConfig = adapter.StripeConfig{
		SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		SuccessURL:    v.GetString("CHECKOUT_SUCCESS_URL"),
		CancelURL:     v.GetString("CHECKOUT_CANCEL_URL"),
		Timeout:       cfg.GatewayTimeout,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SERVICE_PORT", "8080")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "checkout")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_PREFIX", "wanderly-")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h")
	v.SetDefault("PAYMENT_GATEWAY", GatewayMock)
	v.SetDefault("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success")
	v.SetDefault("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel")
	v.SetDefault("CURRENCY", "USD")
	v.SetDefault("GATEWAY_TIMEOUT", "10s")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 30)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("CORS_ALLOW_ORIGINS", "")
	v.SetDefault("MOCK_GATEWAY_URL", "http://localhost:3000/mock-pay")
	v.SetDefault("MOCK_GATEWAY_AUTO_PAY", false)
}

func (c *ServiceConfig) validate() error {
	switch c.PaymentGateway {
	case GatewayMock:
		if !c.IsDevelopment() {
			return fmt.Errorf("PAYMENT_GATEWAY=mock is only allowed when APP_ENV=development")
		}
	case GatewayStripe:
		if c.StripeConfig.SecretKey == "" || c.StripeConfig.WebhookSecret == "" {
			return fmt.Errorf("PAYMENT_GATEWAY=stripe requires STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET")
		}
	default:
		return fmt.Errorf("unknown PAYMENT_GATEWAY %q", c.PaymentGateway)
	}
	if c.JWTConfig.Secret == "" && !c.IsDevelopment() {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	if len(c.KafkaConfig.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is empty")
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be an ISO 4217 code, got %q", c.Currency)
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	if c.RateLimitPerMin <= 0 {
		c.RateLimitPerMin = 30
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
