package config

const (
	EnvPrefix = "FARMLINK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EventsSinkPubSub = "pubsub"
	EventsSinkKafka  = "kafka"
)

const (
	EnvAppEnv   = "FARMLINK_APP_ENV"
	EnvPort     = "FARMLINK_APP_PORT"
	EnvLogLevel = "FARMLINK_LOG_LEVEL"

	EnvDBDSN  = "FARMLINK_DB_DSN"
	EnvDBHost = "FARMLINK_DB_HOST"
	EnvDBUser = "FARMLINK_DB_USER"
	EnvDBName = "FARMLINK_DB_NAME"

	EnvRedisURL = "FARMLINK_REDIS_URL"

	EnvJWTSecret  = "FARMLINK_JWT_SECRET"
	EnvJWTIssuer  = "FARMLINK_JWT_ISSUER"
	EnvJWTExpMins = "FARMLINK_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite = "FARMLINK_USE_SQLITE"

	EnvSettlementPollInterval = "FARMLINK_SETTLEMENT_POLL_INTERVAL"
	EnvSettlementCountdown    = "FARMLINK_SETTLEMENT_FALLBACK_COUNTDOWN"
	EnvSettlementMaxRetries   = "FARMLINK_SETTLEMENT_MAX_RETRIES"
	EnvSettlementDelayMin     = "FARMLINK_SETTLEMENT_SYNTHETIC_DELAY_MIN"
	EnvSettlementDelayMax     = "FARMLINK_SETTLEMENT_SYNTHETIC_DELAY_MAX"

	EnvEventsSink   = "FARMLINK_EVENTS_SINK"
	EnvKafkaBrokers = "FARMLINK_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
