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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Queue        QueueConfig
	Drain        DrainConfig
	Reconcile    ReconcileConfig
	Square       SquareConfig
	Ebay         EbayConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"SLABSYNC_APP_ENV" required:"true"`
	Port         string   `envconfig:"SLABSYNC_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"SLABSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"SLABSYNC_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"SLABSYNC_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SLABSYNC_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SLABSYNC_DB_DSN"`
	Driver string `envconfig:"SLABSYNC_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SLABSYNC_DB_HOST"`
	LegacyPort     int    `envconfig:"SLABSYNC_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SLABSYNC_DB_USER"`
	LegacyPassword string `envconfig:"SLABSYNC_DB_PASSWORD"`
	LegacyName     string `envconfig:"SLABSYNC_DB_NAME"`
	LegacySSLMode  string `envconfig:"SLABSYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SLABSYNC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SLABSYNC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SLABSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SLABSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SLABSYNC_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SLABSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"SLABSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"SLABSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SLABSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SLABSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SLABSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SLABSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SLABSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SLABSYNC_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SLABSYNC_AUTO_MIGRATE" default:"false"`
}

// QueueConfig governs sync job retry bookkeeping.
type QueueConfig struct {
	MaxRetries       int           `envconfig:"SLABSYNC_QUEUE_MAX_RETRIES" default:"3"`
	BackoffBase      time.Duration `envconfig:"SLABSYNC_QUEUE_BACKOFF_BASE" default:"30s"`
	BackoffMax       time.Duration `envconfig:"SLABSYNC_QUEUE_BACKOFF_MAX" default:"15m"`
	HeartbeatTimeout time.Duration `envconfig:"SLABSYNC_QUEUE_HEARTBEAT_TIMEOUT" default:"2m"`
}

// DrainConfig supplies defaults for drain invocations. Turbo scaling is applied
// by the caller per invocation; nothing reads these mid-drain.
type DrainConfig struct {
	BatchSize       int           `envconfig:"SLABSYNC_DRAIN_BATCH_SIZE" default:"10"`
	Concurrency     int           `envconfig:"SLABSYNC_DRAIN_CONCURRENCY" default:"1"`
	Delay           time.Duration `envconfig:"SLABSYNC_DRAIN_DELAY" default:"500ms"`
	MaxIterations   int           `envconfig:"SLABSYNC_DRAIN_MAX_ITERATIONS" default:"100"`
	BreakerFailures int           `envconfig:"SLABSYNC_DRAIN_BREAKER_FAILURES" default:"5"`
	TurboMultiplier int           `envconfig:"SLABSYNC_DRAIN_TURBO_MULTIPLIER" default:"4"`
	LockTTL         time.Duration `envconfig:"SLABSYNC_DRAIN_LOCK_TTL" default:"5m"`
	AutoInterval    time.Duration `envconfig:"SLABSYNC_DRAIN_AUTO_INTERVAL" default:"15s"`
}

// Turbo returns a copy with batch size and concurrency scaled by the turbo
// multiplier.
func (d DrainConfig) Turbo() DrainConfig {
	mult := d.TurboMultiplier
	if mult <= 1 {
		return d
	}
	scaled := d
	scaled.BatchSize = d.BatchSize * mult
	scaled.Concurrency = d.Concurrency * mult
	return scaled
}

type ReconcileConfig struct {
	BatchSize   int `envconfig:"SLABSYNC_RECONCILE_BATCH_SIZE" default:"25"`
	DetailLimit int `envconfig:"SLABSYNC_RECONCILE_DETAIL_LIMIT" default:"20"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"SLABSYNC_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"SLABSYNC_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"SLABSYNC_SQUARE_LOCATION_ID"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type EbayConfig struct {
	BaseURL     string        `envconfig:"SLABSYNC_EBAY_BASE_URL" default:"https://api.ebay.com"`
	AccessToken string        `envconfig:"SLABSYNC_EBAY_ACCESS_TOKEN"`
	Timeout     time.Duration `envconfig:"SLABSYNC_EBAY_TIMEOUT" default:"10s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
