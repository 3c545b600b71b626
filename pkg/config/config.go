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

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Cases      CasesConfig
	Compliance ComplianceConfig
	Reports    ReportsConfig
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
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig describes how tokens issued by the identity provider are verified.
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

// CasesConfig tunes case listing and the degraded-mode case cache.
type CasesConfig struct {
	PageSize        int
	FallbackEnabled bool
	CacheKey        string
	FolioPrefix     string
}

// ComplianceConfig governs audit summary caching and alert windows.
type ComplianceConfig struct {
	CacheTTL       time.Duration
	CriticalWindow time.Duration
}

// ReportsConfig configures asynchronous compliance report generation.
type ReportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	pageSize := v.GetInt("CASES_PAGE_SIZE")
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 200
	}
	cfg.Cases = CasesConfig{
		PageSize:        pageSize,
		FallbackEnabled: v.GetBool("CASES_FALLBACK_ENABLED"),
		CacheKey:        v.GetString("CASES_CACHE_KEY"),
		FolioPrefix:     v.GetString("CASES_FOLIO_PREFIX"),
	}

	cfg.Compliance = ComplianceConfig{
		CacheTTL:       parseDuration(v.GetString("COMPLIANCE_CACHE_TTL"), 2*time.Minute),
		CriticalWindow: parseDuration(v.GetString("COMPLIANCE_CRITICAL_WINDOW"), 48*time.Hour),
	}

	cfg.Reports = ReportsConfig{
		Enabled:           v.GetBool("ENABLE_REPORTS"),
		StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
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
	v.SetDefault("DB_NAME", "convivencia_escolar")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CASES_PAGE_SIZE", 200)
	v.SetDefault("CASES_FALLBACK_ENABLED", true)
	v.SetDefault("CASES_CACHE_KEY", "convivencia:expedientes")
	v.SetDefault("CASES_FOLIO_PREFIX", "EXP")

	v.SetDefault("COMPLIANCE_CACHE_TTL", "2m")
	v.SetDefault("COMPLIANCE_CRITICAL_WINDOW", "48h")

	v.SetDefault("ENABLE_REPORTS", false)
	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
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
