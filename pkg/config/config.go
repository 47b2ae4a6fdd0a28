package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Settlement   SettlementConfig
	MobileMoney  MobileMoneyConfig
	Square       SquareConfig
	Events       EventsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Events.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FARMLINK_APP_ENV" required:"true"`
	Port         string `envconfig:"FARMLINK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FARMLINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FARMLINK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type DBConfig struct {
	DSN    string `envconfig:"FARMLINK_DB_DSN"`
	Driver string `envconfig:"FARMLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FARMLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"FARMLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FARMLINK_DB_USER"`
	LegacyPassword string `envconfig:"FARMLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"FARMLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"FARMLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FARMLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FARMLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FARMLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FARMLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FARMLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FARMLINK_REDIS_ADDR"`
	Password     string        `envconfig:"FARMLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"FARMLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FARMLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FARMLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FARMLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FARMLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FARMLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FARMLINK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FARMLINK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FARMLINK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FARMLINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FARMLINK_AUTO_MIGRATE" default:"false"`
}

// SettlementConfig holds the payment polling and delivery fee knobs. Fees
// are minor units of DefaultCurrency.
type SettlementConfig struct {
	PollInterval      time.Duration `envconfig:"FARMLINK_SETTLEMENT_POLL_INTERVAL" default:"3s"`
	FallbackCountdown time.Duration `envconfig:"FARMLINK_SETTLEMENT_FALLBACK_COUNTDOWN" default:"60s"`
	MaxRetries        int           `envconfig:"FARMLINK_SETTLEMENT_MAX_RETRIES" default:"3"`
	SyntheticDelayMin time.Duration `envconfig:"FARMLINK_SETTLEMENT_SYNTHETIC_DELAY_MIN" default:"1s"`
	SyntheticDelayMax time.Duration `envconfig:"FARMLINK_SETTLEMENT_SYNTHETIC_DELAY_MAX" default:"1500ms"`
	StaleGrace        time.Duration `envconfig:"FARMLINK_SETTLEMENT_STALE_GRACE" default:"2m"`
	DefaultCurrency   string        `envconfig:"FARMLINK_SETTLEMENT_DEFAULT_CURRENCY" default:"KES"`
	DeliveryBaseFee   int64         `envconfig:"FARMLINK_SETTLEMENT_DELIVERY_BASE_FEE" default:"15000"`
	DeliveryItemFee   int64         `envconfig:"FARMLINK_SETTLEMENT_DELIVERY_ITEM_FEE" default:"0"`
}

func (s SettlementConfig) validate() error {
	if s.PollInterval <= 0 || s.FallbackCountdown <= 0 {
		return fmt.Errorf("settlement poll interval and fallback countdown must be positive")
	}
	if s.PollInterval >= s.FallbackCountdown {
		return fmt.Errorf("settlement poll interval %s must be shorter than fallback countdown %s", s.PollInterval, s.FallbackCountdown)
	}
	if s.MaxRetries <= 0 {
		return fmt.Errorf("%s must be positive", EnvSettlementMaxRetries)
	}
	if s.SyntheticDelayMin < 0 || s.SyntheticDelayMax < s.SyntheticDelayMin {
		return fmt.Errorf("invalid synthetic delay range %s..%s", s.SyntheticDelayMin, s.SyntheticDelayMax)
	}
	if s.DeliveryBaseFee < 0 || s.DeliveryItemFee < 0 {
		return fmt.Errorf("delivery fees must not be negative")
	}
	return nil
}

type MobileMoneyConfig struct {
	BaseURL string        `envconfig:"FARMLINK_MOBILE_MONEY_BASE_URL"`
	APIKey  string        `envconfig:"FARMLINK_MOBILE_MONEY_API_KEY"`
	Timeout time.Duration `envconfig:"FARMLINK_MOBILE_MONEY_TIMEOUT" default:"10s"`
}

// Enabled reports whether the mobile money provider should be registered.
func (m MobileMoneyConfig) Enabled() bool {
	return strings.TrimSpace(m.BaseURL) != ""
}

type SquareConfig struct {
	Env         string `envconfig:"FARMLINK_SQUARE_ENV" default:"sandbox"`
	AccessToken string `envconfig:"FARMLINK_SQUARE_ACCESS_TOKEN"`
	LocationID  string `envconfig:"FARMLINK_SQUARE_LOCATION_ID"`
}

// Enabled reports whether the card provider should be registered.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != ""
}

type EventsConfig struct {
	Sink  string `envconfig:"FARMLINK_EVENTS_SINK" default:"pubsub"`
	Topic string `envconfig:"FARMLINK_EVENTS_TOPIC" default:"farmlink-settlement-events"`
}

func (e EventsConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Sink)) {
	case EventsSinkPubSub, EventsSinkKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvEventsSink, EventsSinkPubSub, EventsSinkKafka, e.Sink)
	}
}

// SinkName returns the normalized sink identifier.
func (e EventsConfig) SinkName() string {
	return strings.ToLower(strings.TrimSpace(e.Sink))
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FARMLINK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FARMLINK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FARMLINK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	// EnsureTopic makes the publisher verify the topic exists at startup.
	EnsureTopic bool `envconfig:"FARMLINK_PUBSUB_ENSURE_TOPIC" default:"true"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"FARMLINK_KAFKA_BROKERS"`
	WriteTimeout time.Duration `envconfig:"FARMLINK_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"FARMLINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"FARMLINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"FARMLINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"FARMLINK_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"FARMLINK_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"FARMLINK_CRON_LOCK_TTL" default:"5m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.Driver = "sqlite"
		db.DSN = "file:farmlink.db?cache=shared"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
