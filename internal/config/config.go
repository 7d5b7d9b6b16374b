package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	BaseURL string `env:"BASE_URL" validate:"omitempty,url"`

	StoreDriver   string `env:"STORE_DRIVER" envDefault:"postgres" validate:"oneof=postgres mongo"`
	DatabaseURL   string `env:"DATABASE_URL" validate:"required_if=StoreDriver postgres"`
	MongoURI      string `env:"MONGO_URI" validate:"required_if=StoreDriver mongo"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"storefront"`

	DatabaseMaxConns         int32         `env:"DATABASE_MAX_CONNS" envDefault:"10" validate:"gte=0"`
	DatabaseStatementTimeout time.Duration `env:"DATABASE_STATEMENT_TIMEOUT" envDefault:"30s" validate:"gte=0"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	SessionStoreProvider  string `env:"SESSION_STORE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis,required_if=SessionStoreProvider redis"`

	CarrierBaseURL        string        `env:"CARRIER_BASE_URL" validate:"omitempty,url"`
	CarrierToken          string        `env:"CARRIER_TOKEN,required" validate:"required"`
	CarrierShopID         string        `env:"CARRIER_SHOP_ID,required" validate:"required"`
	CarrierFromDistrictID int           `env:"CARRIER_FROM_DISTRICT_ID,required" validate:"required,gt=0"`
	CarrierFromWardCode   string        `env:"CARRIER_FROM_WARD_CODE,required" validate:"required"`
	CarrierFromName       string        `env:"CARRIER_FROM_NAME"`
	CarrierFromPhone      string        `env:"CARRIER_FROM_PHONE"`
	CarrierFromAddress    string        `env:"CARRIER_FROM_ADDRESS"`
	CarrierServiceTypeID  int           `env:"CARRIER_SERVICE_TYPE_ID" envDefault:"2" validate:"gt=0"`
	CarrierTimeout        time.Duration `env:"CARRIER_TIMEOUT" envDefault:"10s" validate:"gt=0"`

	GatewayURL         string        `env:"GATEWAY_URL" envDefault:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html" validate:"required,url"`
	GatewayTmnCode     string        `env:"GATEWAY_TMN_CODE,required" validate:"required"`
	GatewayHashSecret  string        `env:"GATEWAY_HASH_SECRET,required" validate:"required"`
	GatewayReturnURL   string        `env:"GATEWAY_RETURN_URL,required" validate:"required,url"`
	GatewayLocale      string        `env:"GATEWAY_LOCALE" envDefault:"vn" validate:"oneof=vn en"`
	GatewayTimezone    string        `env:"GATEWAY_TIMEZONE" envDefault:"Asia/Ho_Chi_Minh" validate:"required"`
	GatewayExpireAfter time.Duration `env:"GATEWAY_EXPIRE_AFTER" envDefault:"15m" validate:"gte=0"`

	FeeFailurePolicy  string        `env:"FEE_FAILURE_POLICY" envDefault:"fallback_zero" validate:"oneof=fallback_zero abort"`
	DefaultItemWeight int           `env:"DEFAULT_ITEM_WEIGHT" envDefault:"500" validate:"gt=0"`
	FeeQuoteTTL       time.Duration `env:"FEE_QUOTE_TTL" envDefault:"10m" validate:"gte=0"`

	ReconcileEnabled     bool          `env:"RECONCILE_ENABLED" envDefault:"true"`
	ReconcileInterval    time.Duration `env:"RECONCILE_INTERVAL" envDefault:"10m" validate:"gte=1s"`
	ReconcileConcurrency int           `env:"RECONCILE_CONCURRENCY" envDefault:"4" validate:"gte=1,lte=64"`

	EmailProvider string        `env:"EMAIL_PROVIDER" validate:"omitempty,oneof=postmark mailgun resend"`
	EmailAPIKey   string        `env:"EMAIL_API_KEY"`
	EmailFrom     string        `env:"EMAIL_FROM" validate:"omitempty,email"`
	EmailDomain   string        `env:"EMAIL_DOMAIN"`
	EmailBaseURL  string        `env:"EMAIL_BASE_URL" validate:"omitempty,url"`
	EmailTimeout  time.Duration `env:"EMAIL_TIMEOUT" envDefault:"30s"`

	EventsProvider string        `env:"EVENTS_PROVIDER" envDefault:"none" validate:"oneof=none kafka"`
	KafkaBrokers   []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic     string        `env:"KAFKA_TOPIC" envDefault:"storefront.orders" validate:"required"`
	KafkaBatch     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"100ms"`

	CatalogPath   string `env:"CATALOG_PATH" envDefault:"catalog.yaml" validate:"required"`
	AdminAPIToken string `env:"ADMIN_API_TOKEN,required" validate:"required,min=16"`

	SentryDSN              string  `env:"SENTRY_DSN"`
	SentryEnvironment      string  `env:"SENTRY_ENVIRONMENT"`
	SentryTracesSampleRate float64 `env:"SENTRY_TRACES_SAMPLE_RATE" envDefault:"0" validate:"gte=0,lte=1"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	if c.EventsProvider == "kafka" && len(nonEmpty(c.KafkaBrokers)) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when EVENTS_PROVIDER=kafka")
	}

	if err := c.validateEmail(); err != nil {
		return err
	}

	if _, err := time.LoadLocation(c.GatewayTimezone); err != nil {
		return fmt.Errorf("GATEWAY_TIMEZONE is not a known time zone: %w", err)
	}

	baseURL := strings.TrimSpace(c.BaseURL)
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil || parsed.Hostname() == "" {
			return fmt.Errorf("BASE_URL must be a valid absolute URL")
		}
		if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
			return fmt.Errorf("BASE_URL must use https outside local development")
		}
	}

	return nil
}

func (c *Config) validateEmail() error {
	if c.EmailProvider == "" {
		return nil
	}
	if strings.TrimSpace(c.EmailAPIKey) == "" {
		return fmt.Errorf("EMAIL_API_KEY is required when EMAIL_PROVIDER is set")
	}
	if strings.TrimSpace(c.EmailFrom) == "" {
		return fmt.Errorf("EMAIL_FROM is required when EMAIL_PROVIDER is set")
	}
	if c.EmailProvider == "mailgun" && strings.TrimSpace(c.EmailDomain) == "" {
		return fmt.Errorf("EMAIL_DOMAIN is required when EMAIL_PROVIDER=mailgun")
	}
	return nil
}

// GatewayLocation resolves GatewayTimezone. validate has already checked it.
func (c *Config) GatewayLocation() *time.Location {
	location, err := time.LoadLocation(c.GatewayTimezone)
	if err != nil {
		return time.FixedZone("ICT", 7*60*60)
	}
	return location
}

// Brokers returns the configured Kafka brokers without blanks.
func (c *Config) Brokers() []string {
	return nonEmpty(c.KafkaBrokers)
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
