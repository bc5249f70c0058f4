package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Audit    AuditConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AuditConfig tunes trail fetching, normalization and reference resolution.
type AuditConfig struct {
	DefaultLimit         int
	MaxLimit             int
	NormalizeWorkers     int
	ReferenceCacheTTL    time.Duration
	ReferenceRefresh     time.Duration
	RefreshWorkers       int
	RefreshRetries       int
	ExtraIgnoredFields   []string
	FieldLabelsFile      string
	SystemActorLabel     string
	ExportMaxEntries     int
	PreviewMaxEntries    int
	ReferenceLoadTimeout time.Duration
	ReferenceCachePrefix string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET"), Issuer: v.GetString("JWT_ISSUER")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxLimit := positive(v.GetInt("AUDIT_MAX_LIMIT"), 500)
	defaultLimit := positive(v.GetInt("AUDIT_DEFAULT_LIMIT"), 50)
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}

	cfg.Audit = AuditConfig{
		DefaultLimit:         defaultLimit,
		MaxLimit:             maxLimit,
		NormalizeWorkers:     positive(v.GetInt("AUDIT_NORMALIZE_WORKERS"), 4),
		ReferenceCacheTTL:    parseDuration(v.GetString("AUDIT_REFERENCE_CACHE_TTL"), 10*time.Minute),
		ReferenceRefresh:     parseDuration(v.GetString("AUDIT_REFERENCE_REFRESH_INTERVAL"), 5*time.Minute),
		RefreshWorkers:       positive(v.GetInt("AUDIT_REFRESH_WORKERS"), 1),
		RefreshRetries:       v.GetInt("AUDIT_REFRESH_RETRIES"),
		ExtraIgnoredFields:   splitAndTrim(v.GetString("AUDIT_EXTRA_IGNORED_FIELDS")),
		FieldLabelsFile:      v.GetString("AUDIT_FIELD_LABELS_FILE"),
		SystemActorLabel:     v.GetString("AUDIT_SYSTEM_ACTOR_LABEL"),
		ExportMaxEntries:     positive(v.GetInt("AUDIT_EXPORT_MAX_ENTRIES"), maxLimit),
		PreviewMaxEntries:    positive(v.GetInt("AUDIT_PREVIEW_MAX_ENTRIES"), 500),
		ReferenceLoadTimeout: parseDuration(v.GetString("AUDIT_REFERENCE_LOAD_TIMEOUT"), 10*time.Second),
		ReferenceCachePrefix: v.GetString("AUDIT_REFERENCE_CACHE_PREFIX"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "ops_console")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AUDIT_DEFAULT_LIMIT", 50)
	v.SetDefault("AUDIT_MAX_LIMIT", 500)
	v.SetDefault("AUDIT_NORMALIZE_WORKERS", 4)
	v.SetDefault("AUDIT_REFERENCE_CACHE_TTL", "10m")
	v.SetDefault("AUDIT_REFERENCE_REFRESH_INTERVAL", "5m")
	v.SetDefault("AUDIT_REFRESH_WORKERS", 1)
	v.SetDefault("AUDIT_REFRESH_RETRIES", 3)
	v.SetDefault("AUDIT_EXTRA_IGNORED_FIELDS", "")
	v.SetDefault("AUDIT_FIELD_LABELS_FILE", "")
	v.SetDefault("AUDIT_SYSTEM_ACTOR_LABEL", "System")
	v.SetDefault("AUDIT_EXPORT_MAX_ENTRIES", 500)
	v.SetDefault("AUDIT_PREVIEW_MAX_ENTRIES", 500)
	v.SetDefault("AUDIT_REFERENCE_LOAD_TIMEOUT", "10s")
	v.SetDefault("AUDIT_REFERENCE_CACHE_PREFIX", "audit:refs")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}

func positive(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
