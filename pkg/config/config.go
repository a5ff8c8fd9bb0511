package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/tabkeeper-backend/pkg/enums"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Ledger       LedgerConfig
	FeatureFlags FeatureFlagsConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if !cfg.Ledger.UndoScope.IsValid() {
		return nil, fmt.Errorf("%s must be one of global|user, got %q", EnvLedgerUndoScope, cfg.Ledger.UndoScope)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TALLY_APP_ENV" required:"true"`
	Port         string `envconfig:"TALLY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TALLY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TALLY_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"TALLY_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TALLY_DB_DSN"`
	Driver string `envconfig:"TALLY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TALLY_DB_HOST"`
	LegacyPort     int    `envconfig:"TALLY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TALLY_DB_USER"`
	LegacyPassword string `envconfig:"TALLY_DB_PASSWORD"`
	LegacyName     string `envconfig:"TALLY_DB_NAME"`
	LegacySSLMode  string `envconfig:"TALLY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TALLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TALLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TALLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TALLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite engine.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"TALLY_REDIS_URL"`
	Address      string        `envconfig:"TALLY_REDIS_ADDR"`
	Password     string        `envconfig:"TALLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"TALLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TALLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TALLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TALLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TALLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TALLY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type LedgerConfig struct {
	WriteTimeout      time.Duration   `envconfig:"TALLY_LEDGER_WRITE_TIMEOUT" default:"5s"`
	UndoScope         enums.UndoScope `envconfig:"TALLY_LEDGER_UNDO_SCOPE" default:"global"`
	DistributedLocks  bool            `envconfig:"TALLY_LEDGER_DISTRIBUTED_LOCKS" default:"false"`
	LockTTL           time.Duration   `envconfig:"TALLY_LEDGER_LOCK_TTL" default:"10s"`
	LockRetryInterval time.Duration   `envconfig:"TALLY_LEDGER_LOCK_RETRY_INTERVAL" default:"50ms"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TALLY_AUTO_MIGRATE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"TALLY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"TALLY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"TALLY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Channel        string `envconfig:"TALLY_OUTBOX_CHANNEL" default:"tally.events"`
}

type CronConfig struct {
	Interval                time.Duration `envconfig:"TALLY_CRON_INTERVAL" default:"1h"`
	LockTimeout             time.Duration `envconfig:"TALLY_CRON_LOCK_TIMEOUT" default:"2s"`
	OutboxRetentionDays     int           `envconfig:"TALLY_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DeadLetterRetentionDays int           `envconfig:"TALLY_CRON_DLQ_RETENTION_DAYS" default:"90"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
