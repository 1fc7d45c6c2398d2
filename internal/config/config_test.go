package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/volume-engine/internal/volume"
)

func validConfig() Config {
	return Config{
		Environment: "development",
		Volume: VolumeConfig{
			ElasticityBound:     0.3,
			FollowupRatio:       0.8,
			FollowupDailyCap:    5,
			MinDataMessages:     20,
			BumpMultiplierMin:   1,
			BumpMultiplierMax:   2.67,
			DivergenceThreshold: 0.25,
		},
		Planner: PlannerConfig{
			FetchTimeout: "5s",
			MinWorkers:   1,
			MaxWorkers:   4,
		},
		Telemetry: TelemetryConfig{SampleRate: 1, Exporter: "stdout"},
	}
}

func TestLoad_WithDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")

	config, err := Load()
	require.NoError(t, err)
	require.NotNil(t, config)

	// Test default values
	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, config.Server.AllowedOrigins)
	assert.Equal(t, "localhost", config.Database.Host)
	assert.Equal(t, 5432, config.Database.Port)
	assert.Equal(t, "volume_engine", config.Database.DBName)
	assert.Equal(t, "localhost", config.Redis.Host)
	assert.Equal(t, 6379, config.Redis.Port)
	assert.Equal(t, volume.DefaultConfig(), config.Volume.Engine())
	assert.Equal(t, 5*time.Second, config.Planner.FetchTimeoutDuration())
	assert.Equal(t, 7*24*time.Hour, config.Planner.PlanCacheTTLDuration())
	assert.Equal(t, 10*time.Minute, config.Planner.InventoryCacheTTLDuration())
	assert.Equal(t, 16, config.Planner.MaxWorkers)
	assert.Equal(t, 2, config.Planner.MinWorkers)
	assert.False(t, config.Telemetry.Enabled)
	assert.Equal(t, "otlp", config.Telemetry.Exporter)
	assert.Equal(t, "volume-engine", config.Telemetry.ServiceName)
	assert.Equal(t, "", config.Telegram.BotToken)
	assert.Equal(t, int64(0), config.Telegram.OpsChatID)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	t.Setenv("ENVIRONMENT", "Production")
	t.Setenv("JWT_SECRET", "prod-secret")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DATABASE_HOST", "prod-db.example.com")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("VOLUME_ELASTICITY_BOUND", "0.2")
	t.Setenv("VOLUME_FOLLOWUP_DAILY_CAP", "3")
	t.Setenv("PLANNER_FETCH_TIMEOUT", "2s")
	t.Setenv("TELEMETRY_EXPORTER", "stdout")
	t.Setenv("TELEGRAM_BOT_TOKEN", "prod_bot_token")
	t.Setenv("TELEGRAM_OPS_CHAT_ID", "-100123")

	config, err := Load()
	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, "prod-secret", config.Security.JWTSecret)
	assert.Equal(t, "error", config.LogLevel)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "prod-db.example.com", config.Database.Host)
	assert.Equal(t, 6380, config.Redis.Port)
	assert.Equal(t, 0.2, config.Volume.ElasticityBound)
	assert.Equal(t, 3, config.Volume.FollowupDailyCap)
	assert.Equal(t, 2*time.Second, config.Planner.FetchTimeoutDuration())
	assert.Equal(t, "stdout", config.Telemetry.Exporter)
	assert.Equal(t, "prod_bot_token", config.Telegram.BotToken)
	assert.Equal(t, int64(-100123), config.Telegram.OpsChatID)
}

func TestLoad_RequiresJWTSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("JWT_SECRET", "")

	config, err := Load()
	assert.Nil(t, config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_RejectsInvalidVolumeConfig(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("VOLUME_FOLLOWUP_RATIO", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, volume.ErrInvalidConfig)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad fetch timeout", func(c *Config) { c.Planner.FetchTimeout = "soon" }, "planner.fetch_timeout"},
		{"bad cache ttl", func(c *Config) { c.Planner.PlanCacheTTL = "1 week" }, "planner.plan_cache_ttl"},
		{"zero workers", func(c *Config) { c.Planner.MinWorkers = 0 }, "min_workers"},
		{"max below min", func(c *Config) { c.Planner.MaxWorkers = 0 }, "max_workers"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "sample rate"},
		{"exporter", func(c *Config) { c.Telemetry.Exporter = "zipkin" }, "zipkin"},
		{"volume bound", func(c *Config) { c.Volume.ElasticityBound = -1 }, "elasticity_bound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPlannerConfig_DurationFallbacks(t *testing.T) {
	p := PlannerConfig{FetchTimeout: "bogus"}

	assert.Equal(t, 5*time.Second, p.FetchTimeoutDuration())
	assert.Equal(t, 7*24*time.Hour, p.PlanCacheTTLDuration())
	assert.Equal(t, 10*time.Minute, p.InventoryCacheTTLDuration())
}

func TestVolumeConfig_Engine(t *testing.T) {
	cfg := validConfig()

	engine := cfg.Volume.Engine()

	assert.Equal(t, 0.3, engine.ElasticityBound)
	assert.Equal(t, 5, engine.FollowupDailyCap)
	assert.NoError(t, engine.Validate())
}
