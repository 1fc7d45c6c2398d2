package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/irfndi/volume-engine/internal/volume"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Volume      VolumeConfig    `mapstructure:"volume"`
	Planner     PlannerConfig   `mapstructure:"planner"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	Security    SecurityConfig  `mapstructure:"security"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// PoolSize bounds connections; batch planning opens up to two per worker.
	PoolSize int `mapstructure:"pool_size"`
}

// VolumeConfig mirrors volume.Config so operators can tune the engine from config.yaml.
type VolumeConfig struct {
	ElasticityBound     float64 `mapstructure:"elasticity_bound"`
	FollowupRatio       float64 `mapstructure:"followup_ratio"`
	FollowupDailyCap    int     `mapstructure:"followup_daily_cap"`
	MinDataMessages     int     `mapstructure:"min_data_messages"`
	BumpMultiplierMin   float64 `mapstructure:"bump_multiplier_min"`
	BumpMultiplierMax   float64 `mapstructure:"bump_multiplier_max"`
	DivergenceThreshold float64 `mapstructure:"divergence_threshold"`
}

// Engine converts the section into an engine config.
func (v VolumeConfig) Engine() volume.Config {
	return volume.Config{
		ElasticityBound:     v.ElasticityBound,
		FollowupRatio:       v.FollowupRatio,
		FollowupDailyCap:    v.FollowupDailyCap,
		MinDataMessages:     v.MinDataMessages,
		BumpMultiplierMin:   v.BumpMultiplierMin,
		BumpMultiplierMax:   v.BumpMultiplierMax,
		DivergenceThreshold: v.DivergenceThreshold,
	}
}

type PlannerConfig struct {
	FetchTimeout      string `mapstructure:"fetch_timeout"`
	MaxWorkers        int    `mapstructure:"max_workers"`
	MinWorkers        int    `mapstructure:"min_workers"`
	PlanCacheTTL      string `mapstructure:"plan_cache_ttl"`
	InventoryCacheTTL string `mapstructure:"inventory_cache_ttl"`
}

// FetchTimeoutDuration returns the parsed fetch timeout, or 5s when unset.
func (p PlannerConfig) FetchTimeoutDuration() time.Duration {
	return parseDurationOr(p.FetchTimeout, 5*time.Second)
}

// PlanCacheTTLDuration returns the parsed plan cache TTL, or 7 days when unset.
func (p PlannerConfig) PlanCacheTTLDuration() time.Duration {
	return parseDurationOr(p.PlanCacheTTL, 7*24*time.Hour)
}

// InventoryCacheTTLDuration returns the parsed inventory cache TTL, or 10 minutes when unset.
func (p PlannerConfig) InventoryCacheTTLDuration() time.Duration {
	return parseDurationOr(p.InventoryCacheTTL, 10*time.Minute)
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	// Exporter is "otlp" or "stdout".
	Exporter string `mapstructure:"exporter"`
}

type TelegramConfig struct {
	BotToken  string `mapstructure:"bot_token"`
	OpsChatID int64  `mapstructure:"ops_chat_id"`
}

type SecurityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	// AdminAPIKey guards /admin routes. Empty disables them.
	AdminAPIKey string `mapstructure:"admin_api_key" json:"-" yaml:"-"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific environment variables
	if err := v.BindEnv("security.jwt_secret", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind JWT_SECRET environment variable: %w", err)
	}
	if err := v.BindEnv("security.admin_api_key", "ADMIN_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_API_KEY environment variable: %w", err)
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	// Validate JWT secret in non-development environments
	if c.Environment != "development" && c.Security.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required in non-development environments")
	}

	if err := c.Volume.Engine().Validate(); err != nil {
		return fmt.Errorf("invalid volume config: %w", err)
	}

	for key, raw := range map[string]string{
		"planner.fetch_timeout":       c.Planner.FetchTimeout,
		"planner.plan_cache_ttl":      c.Planner.PlanCacheTTL,
		"planner.inventory_cache_ttl": c.Planner.InventoryCacheTTL,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid %s duration: %w", key, err)
		}
	}

	if c.Planner.MinWorkers < 1 || c.Planner.MaxWorkers < c.Planner.MinWorkers {
		return fmt.Errorf("planner workers must satisfy 1 <= min_workers <= max_workers, got %d and %d",
			c.Planner.MinWorkers, c.Planner.MaxWorkers)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry sample rate must be within [0,1], got %v", c.Telemetry.SampleRate)
	}
	switch c.Telemetry.Exporter {
	case "otlp", "stdout":
	default:
		return fmt.Errorf("unknown telemetry exporter %q", c.Telemetry.Exporter)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Set database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "volume_engine")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)

	// Volume engine
	defaults := volume.DefaultConfig()
	v.SetDefault("volume.elasticity_bound", defaults.ElasticityBound)
	v.SetDefault("volume.followup_ratio", defaults.FollowupRatio)
	v.SetDefault("volume.followup_daily_cap", defaults.FollowupDailyCap)
	v.SetDefault("volume.min_data_messages", defaults.MinDataMessages)
	v.SetDefault("volume.bump_multiplier_min", defaults.BumpMultiplierMin)
	v.SetDefault("volume.bump_multiplier_max", defaults.BumpMultiplierMax)
	v.SetDefault("volume.divergence_threshold", defaults.DivergenceThreshold)

	// Planner
	v.SetDefault("planner.fetch_timeout", "5s")
	v.SetDefault("planner.max_workers", 16)
	v.SetDefault("planner.min_workers", 2)
	v.SetDefault("planner.plan_cache_ttl", "168h")
	v.SetDefault("planner.inventory_cache_ttl", "10m")

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "volume-engine")
	v.SetDefault("telemetry.sample_rate", 1.0)
	v.SetDefault("telemetry.exporter", "otlp")

	// Telegram
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.ops_chat_id", 0)

	// Security
	v.SetDefault("security.jwt_secret", "")
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
