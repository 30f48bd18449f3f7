package config

// EnvPrefix is passed to envconfig; individual fields carry explicit names.
const EnvPrefix = "SLABSYNC"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "SLABSYNC_APP_ENV"
	EnvPort     = "SLABSYNC_APP_PORT"
	EnvDBDSN    = "SLABSYNC_DB_DSN"
	EnvDBHost   = "SLABSYNC_DB_HOST"
	EnvDBUser   = "SLABSYNC_DB_USER"
	EnvDBName   = "SLABSYNC_DB_NAME"
	EnvRedisURL = "SLABSYNC_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
