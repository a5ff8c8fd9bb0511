package config

const (
	EnvPrefix = "TALLY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "TALLY_APP_ENV"
	EnvPort     = "TALLY_APP_PORT"
	EnvLogLevel = "TALLY_LOG_LEVEL"

	EnvDBDSN    = "TALLY_DB_DSN"
	EnvDBDriver = "TALLY_DB_DRIVER"
	EnvDBHost   = "TALLY_DB_HOST"
	EnvDBUser   = "TALLY_DB_USER"
	EnvDBName   = "TALLY_DB_NAME"

	EnvRedisURL  = "TALLY_REDIS_URL"
	EnvRedisAddr = "TALLY_REDIS_ADDR"

	EnvLedgerUndoScope    = "TALLY_LEDGER_UNDO_SCOPE"
	EnvLedgerWriteTimeout = "TALLY_LEDGER_WRITE_TIMEOUT"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
