// Package config loads service settings from defaults, an optional config file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/devinsights/internal/warehouse"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config is the validated process configuration.
type Config struct {
	Port            string
	APIKey          string
	ProjectID       string
	CredentialsFile string
	Datasets        warehouse.Datasets
	CacheBackend    string
	RedisAddr       string
	CockpitTTL      time.Duration
	AnalyticsTTL    time.Duration
	RateLimit       int
	RateLimitWindow time.Duration
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Addr is the listen address derived from Port.
func (c Config) Addr() string {
	return ":" + c.Port
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "3000")
	v.SetDefault("api_key", "")
	v.SetDefault("google_cloud_project_id", "")
	v.SetDefault("google_application_credentials", "")
	v.SetDefault("bigquery_mongo_dataset", "mongo_mirror")
	v.SetDefault("bigquery_postgres_dataset", "postgres_mirror")
	v.SetDefault("bigquery_custom_tables_dataset", "custom_tables")
	v.SetDefault("cache_backend", CacheBackendMemory)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("cache_ttl_cockpit", 5*time.Minute)
	v.SetDefault("cache_ttl_analytics", 15*time.Minute)
	v.SetDefault("rate_limit_requests", 100)
	v.SetDefault("rate_limit_window", 15*time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("shutdown_timeout", 15*time.Second)
}

// New returns a viper instance that reads the environment and, when present, configFile
// or ./devinsights.yaml.
func New(configFile string) *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("devinsights")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the config file if one exists and builds a validated Config.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Port:            v.GetString("port"),
		APIKey:          v.GetString("api_key"),
		ProjectID:       v.GetString("google_cloud_project_id"),
		CredentialsFile: v.GetString("google_application_credentials"),
		Datasets: warehouse.Datasets{
			warehouse.DatasetMongo:    v.GetString("bigquery_mongo_dataset"),
			warehouse.DatasetPostgres: v.GetString("bigquery_postgres_dataset"),
			warehouse.DatasetCustom:   v.GetString("bigquery_custom_tables_dataset"),
		},
		CacheBackend:    strings.ToLower(v.GetString("cache_backend")),
		RedisAddr:       v.GetString("redis_addr"),
		CockpitTTL:      v.GetDuration("cache_ttl_cockpit"),
		AnalyticsTTL:    v.GetDuration("cache_ttl_analytics"),
		RateLimit:       v.GetInt("rate_limit_requests"),
		RateLimitWindow: v.GetDuration("rate_limit_window"),
		LogLevel:        v.GetString("log_level"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
	}
	return cfg, cfg.Validate()
}

// Validate reports every missing or invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.APIKey == "" {
		errs = append(errs, errors.New("API_KEY is required"))
	}
	if c.ProjectID == "" {
		errs = append(errs, errors.New("GOOGLE_CLOUD_PROJECT_ID is required"))
	}
	if err := c.Datasets.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis cache backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend))
	}
	if c.CockpitTTL <= 0 || c.AnalyticsTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	if c.RateLimit <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limit requests and window must be positive"))
	}
	return errors.Join(errs...)
}
