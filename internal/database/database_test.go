package database

import (
	"context"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/volume-engine/internal/config"
)

func TestPostgresDB_Close_NilPool(t *testing.T) {
	db := &PostgresDB{Pool: nil}

	// Should not panic when closing nil pool
	assert.NotPanics(t, func() {
		db.Close()
	})
}

func TestBuildDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "engine",
		Password: "secret",
		DBName:   "volume_engine",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=db port=5432 user=engine password=secret dbname=volume_engine sslmode=disable", buildDSN(cfg))

	cfg.DatabaseURL = "postgres://u:p@elsewhere:5433/other"
	assert.Equal(t, "postgres://u:p@elsewhere:5433/other", buildDSN(cfg))
}

func TestPoolConfig(t *testing.T) {
	poolCfg, err := poolConfig(config.DatabaseConfig{
		DatabaseURL:     "postgres://u:p@localhost:5432/volume_engine",
		MaxOpenConns:    12,
		MaxIdleConns:    3,
		ConnMaxLifetime: "30m",
		ConnMaxIdleTime: "invalid-duration",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(12), poolCfg.MaxConns)
	assert.Equal(t, int32(3), poolCfg.MinConns)
	assert.Equal(t, 30*time.Minute, poolCfg.MaxConnLifetime)
	assert.Equal(t, "volume_engine", poolCfg.ConnConfig.Database)
}

func TestNewPostgresConnection_InvalidConfig(t *testing.T) {
	db, err := NewPostgresConnection(context.Background(), config.DatabaseConfig{DatabaseURL: "invalid-url"})
	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to parse database config")
}

func TestNewRedisConnection(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisConnection(context.Background(), config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr)})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestNewRedisConnection_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	port := mustPort(t, mr)
	mr.Close()

	client, err := NewRedisConnection(context.Background(), config.RedisConfig{Host: "127.0.0.1", Port: port})
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return port
}

func TestRunMigrations(t *testing.T) {
	names, err := MigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_volume_schema.sql", names[0])

	mock := newMockPool(t)
	for range names {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS")).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	}

	require.NoError(t, RunMigrations(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_Failure(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS")).WillReturnError(assert.AnError)

	err := RunMigrations(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exec migration 001_volume_schema.sql")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRedisOptions(t *testing.T) {
	opts := redisOptions(config.RedisConfig{Host: "cache.internal", Port: 6380, DB: 2, PoolSize: 20})
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
}

func TestRedisHealthCheck_NotInitialized(t *testing.T) {
	var r *RedisClient
	assert.Error(t, r.HealthCheck(context.Background()))
	assert.Error(t, (&RedisClient{}).HealthCheck(context.Background()))
}
